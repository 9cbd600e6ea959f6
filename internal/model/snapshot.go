package model

// ContextBar is the resolved bar for one context symbol. Present is false when
// the symbol had no bar at or before the primary timestamp; Bar is then zero.
type ContextBar struct {
	Symbol  string `json:"symbol"`
	Bar     Bar    `json:"bar"`
	Present bool   `json:"present"`
}

// ContextBars keeps entries in configured context-symbol order.
type ContextBars []ContextBar

// Get returns the bar resolved for symbol, or false when it is absent or unknown.
func (c ContextBars) Get(symbol string) (Bar, bool) {
	for _, entry := range c {
		if entry.Symbol == symbol {
			return entry.Bar, entry.Present
		}
	}
	return Bar{}, false
}

// Symbols returns the context symbols in order.
func (c ContextBars) Symbols() []string {
	out := make([]string, len(c))
	for i, entry := range c {
		out[i] = entry.Symbol
	}
	return out
}

// AlignedSnapshot is the payload of a bar.update event.
type AlignedSnapshot struct {
	Sequence    uint64      `json:"sequence"`
	SessionDate Date        `json:"session_date"`
	Primary     Bar         `json:"primary_bar"`
	Context     ContextBars `json:"context_bars"`
}
