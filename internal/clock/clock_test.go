package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualTicker(t *testing.T) {
	start := time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)
	m := NewManual(start)
	tk := m.NewTicker(time.Second)

	m.Advance(500 * time.Millisecond)
	assert.Empty(t, tk.C())

	m.Advance(500 * time.Millisecond)
	select {
	case got := <-tk.C():
		assert.Equal(t, start.Add(time.Second), got)
	default:
		t.Fatal("expected tick")
	}

	m.Advance(5 * time.Second)
	assert.Len(t, tk.C(), 1, "pending ticks coalesce")
	<-tk.C()

	tk.Stop()
	assert.Zero(t, m.Tickers())
	m.Advance(time.Minute)
	assert.Empty(t, tk.C())
	assert.Equal(t, start.Add(66*time.Second), m.Now())
}

func TestManualSetBackwards(t *testing.T) {
	start := time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)
	m := NewManual(start)
	tk := m.NewTicker(time.Second)

	m.Set(start.Add(-time.Hour))
	assert.Empty(t, tk.C())
	assert.Equal(t, start.Add(-time.Hour), m.Now())
}

func TestRealNowIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}
