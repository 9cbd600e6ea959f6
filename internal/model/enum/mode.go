package enum

import "strings"

// Mode selects how a feed produces bars.
type Mode uint8

const (
	_mode_beg Mode = iota
	ModeHistorical
	ModePaper
	ModeLive
	_mode_end
)

func (m Mode) IsAvailable() bool {
	return m > _mode_beg && m < _mode_end
}

// IsStub reports whether the mode runs the paper/live validation path instead of a replay.
func (m Mode) IsStub() bool {
	return m == ModePaper || m == ModeLive
}

func (m Mode) String() string {
	switch m {
	case ModeHistorical:
		return "historical"
	case ModePaper:
		return "paper"
	case ModeLive:
		return "live"
	default:
		return "unknown"
	}
}

// ParseMode maps a mode name to its enum value.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "historical":
		return ModeHistorical, true
	case "paper":
		return ModePaper, true
	case "live":
		return ModeLive, true
	default:
		return 0, false
	}
}
