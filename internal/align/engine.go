package align

import (
	"time"

	"marketfeed/internal/barsource"
	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

type cursor struct {
	symbol string
	bars   []model.Bar
	// next is the index of the first bar later than the last aligned time.
	next int
}

// Engine holds one forward-only cursor per context symbol. It is not safe for
// concurrent use; one run owns one Engine.
type Engine struct {
	cursors []cursor
	last    time.Time
	started bool
}

// New builds an engine over the context symbols in the given order. A symbol
// without a series aligns as absent for every primary bar.
func New(symbols []string, series map[string]barsource.Series) *Engine {
	e := &Engine{cursors: make([]cursor, 0, len(symbols))}
	for _, sym := range symbols {
		c := cursor{symbol: sym}
		if s, ok := series[sym]; ok {
			c.bars = s.Bars()
		}
		e.cursors = append(e.cursors, c)
	}
	return e
}

// Align returns the context entry for every symbol: the bar with the greatest
// time not after primary.Time, or an absent entry. Primary times must not go
// backwards between calls until Reset.
func (e *Engine) Align(primary model.Bar) (model.ContextBars, error) {
	if e.started && primary.Time.Before(e.last) {
		return nil, errors.Wrapf(exception.ErrNonMonotonic, "primary %s at %s after %s",
			primary.Symbol, primary.Time.UTC().Format(time.RFC3339), e.last.UTC().Format(time.RFC3339))
	}
	e.started = true
	e.last = primary.Time

	out := make(model.ContextBars, len(e.cursors))
	for i := range e.cursors {
		c := &e.cursors[i]
		for c.next < len(c.bars) && !c.bars[c.next].Time.After(primary.Time) {
			c.next++
		}
		entry := model.ContextBar{Symbol: c.symbol}
		if c.next > 0 {
			entry.Bar = c.bars[c.next-1]
			entry.Present = true
		}
		out[i] = entry
	}
	return out, nil
}

// Reset rewinds every cursor so the same primary sequence can be replayed.
func (e *Engine) Reset() {
	for i := range e.cursors {
		e.cursors[i].next = 0
	}
	e.last = time.Time{}
	e.started = false
}
