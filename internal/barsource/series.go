package barsource

import (
	"slices"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

// Series is the ordered, deduplicated bars of one symbol for one session.
// Bars never move once a Series is built; cursors over it are plain indexes.
type Series struct {
	symbol string
	bars   []model.Bar
}

// NewSeries checks that bars are strictly increasing in time and belong to symbol.
func NewSeries(symbol string, bars []model.Bar) (Series, error) {
	for i, b := range bars {
		if b.Symbol != symbol {
			return Series{}, errors.Wrapf(exception.ErrMalformedBar, "series %s: bar for %s", symbol, b.Symbol)
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1].Time
		if b.Time.Equal(prev) {
			return Series{}, errors.Wrapf(exception.ErrDuplicateBar, "series %s: %s", symbol, b.Time.UTC())
		}
		if b.Time.Before(prev) {
			return Series{}, errors.Wrapf(exception.ErrMalformedBar, "series %s: unsorted at %d", symbol, i)
		}
	}
	return Series{symbol: symbol, bars: slices.Clone(bars)}, nil
}

func (s Series) Symbol() string {
	return s.symbol
}

func (s Series) Len() int {
	return len(s.bars)
}

// At returns the i-th bar. It panics when i is out of range, like a slice index.
func (s Series) At(i int) model.Bar {
	return s.bars[i]
}

// Bars returns a copy of the bars.
func (s Series) Bars() []model.Bar {
	return slices.Clone(s.bars)
}
