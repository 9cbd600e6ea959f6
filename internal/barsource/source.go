package barsource

import (
	"context"
	"slices"
	"sync"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

// Source returns the raw bars stored for symbol around session s. Records may be
// unsorted and may fall outside the RTH window; the Loader normalizes them.
// A missing or unreadable store is reported as exception.ErrDataUnavailable.
type Source interface {
	Fetch(ctx context.Context, symbol string, s model.Session) ([]model.Bar, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, s model.Session) ([]model.Bar, error)

func (f SourceFunc) Fetch(ctx context.Context, symbol string, s model.Session) ([]model.Bar, error) {
	return f(ctx, symbol, s)
}

// Memory is an in-process Source, used by tests and benchmarks.
type Memory struct {
	mu   sync.RWMutex
	bars map[string][]model.Bar
}

func NewMemory() *Memory {
	return &Memory{bars: make(map[string][]model.Bar)}
}

// Put appends bars under their own symbols in the given order.
func (m *Memory) Put(bars ...model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		m.bars[b.Symbol] = append(m.bars[b.Symbol], b)
	}
}

// Set replaces every bar stored for symbol. An empty slice registers the symbol with no data.
func (m *Memory) Set(symbol string, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = slices.Clone(bars)
	if m.bars[symbol] == nil {
		m.bars[symbol] = []model.Bar{}
	}
}

func (m *Memory) Fetch(ctx context.Context, symbol string, _ model.Session) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars, ok := m.bars[symbol]
	if !ok {
		return nil, errors.Wrapf(exception.ErrDataUnavailable, "memory: no bars for %s", symbol)
	}
	return slices.Clone(bars), nil
}
