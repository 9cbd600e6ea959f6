// Package testutil builds deterministic bar fixtures for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/model"
	"marketfeed/internal/session"
)

// BucketsPerSession is the number of 5-minute bars in a full RTH session.
const BucketsPerSession = 78

// Calendar returns the default calendar or fails the test.
func Calendar(t testing.TB) *session.Calendar {
	t.Helper()
	cal, err := session.NewCalendar()
	require.NoError(t, err)
	return cal
}

// Session returns the RTH session of the given date or fails the test.
func Session(t testing.TB, year int, month time.Month, day int) model.Session {
	t.Helper()
	s, err := Calendar(t).SessionFor(model.NewDate(year, month, day))
	require.NoError(t, err)
	return s
}

// Bucket returns the start of the i-th bar of s.
func Bucket(s model.Session, i int) time.Time {
	return s.Start.Add(time.Duration(i) * model.BarInterval)
}

// Bar builds a well-formed bar whose prices derive from base and i.
func Bar(symbol string, ts time.Time, base float64, i int) model.Bar {
	open := base + float64(i)*0.25
	return model.Bar{
		Symbol: symbol,
		Time:   ts.UTC(),
		Open:   open,
		High:   open + 1,
		Low:    open - 1,
		Close:  open + 0.5,
		Volume: int64(1000 + i),
	}
}

// SessionBars returns one bar per bucket index in idx, or every bucket when idx is empty.
func SessionBars(symbol string, s model.Session, base float64, idx ...int) []model.Bar {
	if len(idx) == 0 {
		idx = make([]int, BucketsPerSession)
		for i := range idx {
			idx[i] = i
		}
	}
	bars := make([]model.Bar, 0, len(idx))
	for _, i := range idx {
		bars = append(bars, Bar(symbol, Bucket(s, i), base, i))
	}
	return bars
}

// EvenBuckets returns the bucket indexes from first to the end of the session in steps of 2.
func EvenBuckets(first int) []int {
	var idx []int
	for i := first; i < BucketsPerSession; i += 2 {
		idx = append(idx, i)
	}
	return idx
}
