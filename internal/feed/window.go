package feed

import (
	"time"

	"marketfeed/internal/errors"
	"marketfeed/pkg/exception"
)

const (
	DetailWindowFrom = "window_from"
	DetailWindowTo   = "window_to"
)

// Window limits a historical replay to primary bars timed in [From, To]. A zero
// bound is open, so the zero Window replays the whole session.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

func (w Window) Validate() error {
	if !w.From.IsZero() && !w.To.IsZero() && w.To.Before(w.From) {
		return errors.Wrapf(exception.ErrInvalidWindow, "to %s before from %s", w.To.UTC().Format(time.RFC3339), w.From.UTC().Format(time.RFC3339))
	}
	return nil
}

// before reports whether t precedes the window.
func (w Window) before(t time.Time) bool {
	return !w.From.IsZero() && t.Before(w.From)
}

// after reports whether t follows the window.
func (w Window) after(t time.Time) bool {
	return !w.To.IsZero() && t.After(w.To)
}

func (w Window) detail(into map[string]string) map[string]string {
	if !w.From.IsZero() {
		into[DetailWindowFrom] = w.From.UTC().Format(time.RFC3339)
	}
	if !w.To.IsZero() {
		into[DetailWindowTo] = w.To.UTC().Format(time.RFC3339)
	}
	return into
}
