package model

import "time"

// Session is one trading day's regular-hours window, [Start, End) in UTC.
type Session struct {
	Date  Date      `json:"date"`
	Start time.Time `json:"start_utc"`
	End   time.Time `json:"end_utc"`
}

// Contains reports whether t lies inside the half-open session window.
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

func (s Session) Duration() time.Duration {
	return s.End.Sub(s.Start)
}
