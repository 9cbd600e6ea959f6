package config

import (
	"slices"
	"strings"
	"time"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

const defaultHeartbeatInterval = Duration(time.Second)

// Duration is a time.Duration read from text such as "1s" or "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Settings is everything the feed core consumes. It is built once by Load, or
// by hand in tests, and never read from files or the environment afterwards.
type Settings struct {
	// PrimarySymbols drives bar.update. It holds exactly one symbol: every
	// bar.update of a session shares one sequence.
	PrimarySymbols []string `json:"primary_symbols" env:"PRIMARY_SYMBOLS" envSeparator:","`
	// ContextSymbols are aligned to every primary bar, in this order.
	ContextSymbols []string `json:"context_symbols" env:"CONTEXT_SYMBOLS" envSeparator:","`
	// Locators maps a symbol to its bar store, see barsource.Locators.
	Locators map[string]string `json:"locators" env:"LOCATORS" envSeparator:"," envKeyValSeparator:"="`

	HeartbeatInterval Duration     `json:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	ExtraHolidays     []model.Date `json:"extra_holidays" env:"EXTRA_HOLIDAYS" envSeparator:","`

	Live Live `json:"live" envPrefix:"LIVE_"`

	// JournalDir enables the event journal when set.
	JournalDir string `json:"journal_dir" env:"JOURNAL_DIR"`
}

// Live configures the paper/live readiness check.
type Live struct {
	Enabled  bool     `json:"enabled" env:"ENABLED"`
	Provider string   `json:"provider" env:"PROVIDER"`
	EnvKeys  []string `json:"env_keys" env:"ENV_KEYS" envSeparator:","`
}

func (s Settings) withDefaults() Settings {
	if s.HeartbeatInterval == 0 {
		s.HeartbeatInterval = defaultHeartbeatInterval
	}
	return s
}

// Normalize applies defaults. Load calls it; hand-built settings should too.
func (s Settings) Normalize() Settings {
	return s.withDefaults()
}

// Validate checks that the settings are usable. Missing locators are not an
// error here; they surface as missing data when a session is loaded.
func (s Settings) Validate() error {
	if len(s.PrimarySymbols) == 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "primary_symbols is empty")
	}
	if len(s.PrimarySymbols) > 1 {
		return errors.Wrapf(exception.ErrInvalidConfig, "primary_symbols has %d symbols, one is supported", len(s.PrimarySymbols))
	}
	seen := make(map[string]struct{}, len(s.PrimarySymbols)+len(s.ContextSymbols))
	for _, group := range [][]string{s.PrimarySymbols, s.ContextSymbols} {
		for _, sym := range group {
			if strings.TrimSpace(sym) == "" {
				return errors.Wrap(exception.ErrInvalidConfig, "empty symbol")
			}
			if _, ok := seen[sym]; ok {
				return errors.Wrapf(exception.ErrInvalidConfig, "symbol %s listed twice", sym)
			}
			seen[sym] = struct{}{}
		}
	}
	if s.HeartbeatInterval <= 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "heartbeat_interval must be > 0, got %s", s.HeartbeatInterval.Std())
	}
	if s.Live.Enabled && strings.TrimSpace(s.Live.Provider) == "" {
		return errors.Wrap(exception.ErrInvalidConfig, "live.provider is empty")
	}
	for _, key := range s.Live.EnvKeys {
		if strings.TrimSpace(key) == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "live.env_keys has an empty key")
		}
	}
	return nil
}

// Primary returns the primary symbol, or "" when none is configured.
func (s Settings) Primary() string {
	if len(s.PrimarySymbols) == 0 {
		return ""
	}
	return s.PrimarySymbols[0]
}

// Symbols returns primary then context symbols.
func (s Settings) Symbols() []string {
	return slices.Concat(s.PrimarySymbols, s.ContextSymbols)
}

// MissingCredentials returns the configured credential keys that lookup cannot
// resolve to a non-empty value, in configured order.
func (s Settings) MissingCredentials(lookup func(string) (string, bool)) []string {
	var missing []string
	for _, key := range s.Live.EnvKeys {
		v, ok := "", false
		if lookup != nil {
			v, ok = lookup(key)
		}
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
