package session

import (
	"sync"
	"time"
	_ "time/tzdata"

	"marketfeed/internal/errors"
	"marketfeed/internal/model"
	"marketfeed/pkg/exception"
)

const (
	defaultLocation = "America/New_York"

	rthOpenHour   = 9
	rthOpenMinute = 30
	rthCloseHour  = 16
)

// Option customizes a Calendar.
type Option func(*Calendar) error

// WithLocation overrides the exchange time zone.
func WithLocation(name string) Option {
	return func(c *Calendar) error {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return errors.Wrapf(err, "load location %s", name)
		}
		c.loc = loc
		return nil
	}
}

// WithExtraHolidays adds closures on top of the built-in list.
func WithExtraHolidays(dates ...model.Date) Option {
	return func(c *Calendar) error {
		for _, d := range dates {
			c.extra[d] = struct{}{}
		}
		return nil
	}
}

// WithBucket overrides the bucket width used by Buckets and Bucketize.
func WithBucket(d time.Duration) Option {
	return func(c *Calendar) error {
		if d <= 0 {
			return errors.Wrap(exception.ErrInvalidConfig, "bucket must be positive")
		}
		c.bucket = d
		return nil
	}
}

// Calendar computes RTH sessions. It is safe for concurrent use; results are cached per date.
type Calendar struct {
	loc    *time.Location
	bucket time.Duration
	extra  map[model.Date]struct{}

	mu       sync.Mutex
	holidays map[int]map[model.Date]struct{}
	sessions map[model.Date]model.Session
}

// NewCalendar builds a calendar for US equities RTH, 09:30-16:00 America/New_York.
func NewCalendar(opts ...Option) (*Calendar, error) {
	loc, err := time.LoadLocation(defaultLocation)
	if err != nil {
		return nil, errors.Wrap(err, "load default location")
	}
	c := &Calendar{
		loc:      loc,
		bucket:   model.BarInterval,
		extra:    make(map[model.Date]struct{}),
		holidays: make(map[int]map[model.Date]struct{}),
		sessions: make(map[model.Date]model.Session),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether d is a weekday that is not a holiday.
func (c *Calendar) IsTradingDay(d model.Date) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if _, ok := c.extra[d]; ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.holidays[d.Year]
	if !ok {
		set = make(map[model.Date]struct{})
		for _, h := range holidaysFor(d.Year) {
			set[h] = struct{}{}
		}
		c.holidays[d.Year] = set
	}
	_, holiday := set[d]
	return !holiday
}

// SessionFor returns the RTH window of d or exception.ErrNoTradingSession.
func (c *Calendar) SessionFor(d model.Date) (model.Session, error) {
	if d.IsZero() {
		return model.Session{}, exception.ErrInvalidDate
	}
	if !c.IsTradingDay(d) {
		return model.Session{}, errors.Wrapf(exception.ErrNoTradingSession, "date %s", d)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[d]; ok {
		return s, nil
	}
	// the zone offset is resolved per date so DST transitions are honored
	s := model.Session{
		Date:  d,
		Start: d.At(rthOpenHour, rthOpenMinute, c.loc).UTC(),
		End:   d.At(rthCloseHour, 0, c.loc).UTC(),
	}
	c.sessions[d] = s
	return s, nil
}

// IsWithinSession reports whether t is inside s.
func (c *Calendar) IsWithinSession(t time.Time, s model.Session) bool {
	return s.Contains(t)
}

// Buckets lists the start of every bucket of s, in order.
func (c *Calendar) Buckets(s model.Session) []time.Time {
	out := make([]time.Time, 0, int(s.Duration()/c.bucket))
	for t := s.Start; t.Before(s.End); t = t.Add(c.bucket) {
		out = append(out, t)
	}
	return out
}

// Bucketize floors t to a bucket boundary counted from the open of its session
// date. t is returned unchanged, in UTC, when SessionDateOf finds no session.
func (c *Calendar) Bucketize(t time.Time) time.Time {
	d, ok := c.SessionDateOf(t)
	if !ok {
		return t.UTC()
	}
	open := d.At(rthOpenHour, rthOpenMinute, c.loc)
	delta := t.Sub(open)
	steps := delta / c.bucket
	if delta < 0 && delta%c.bucket != 0 {
		steps--
	}
	return open.Add(steps * c.bucket).UTC()
}

// SessionDateOf returns the trading date t belongs to. Times inside RTH and after
// the close of a trading day belong to that day; times before the open belong to
// the previous trading day. Anything else on a non-trading day has no session.
func (c *Calendar) SessionDateOf(t time.Time) (model.Date, bool) {
	local := t.In(c.loc)
	d := model.DateOf(local)
	open := d.At(rthOpenHour, rthOpenMinute, c.loc)
	if local.Before(open) {
		prev := d.AddDays(-1)
		for !c.IsTradingDay(prev) {
			prev = prev.AddDays(-1)
		}
		return prev, true
	}
	if !c.IsTradingDay(d) {
		return model.Date{}, false
	}
	return d, true
}
