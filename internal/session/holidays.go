package session

import (
	"time"

	"marketfeed/internal/model"
)

// holidaysFor returns a conservative list of US market holidays. Good Friday and
// ad-hoc closures are not included.
func holidaysFor(year int) []model.Date {
	out := make([]model.Date, 0, 8)
	for _, fixed := range []model.Date{
		model.NewDate(year, time.January, 1),
		model.NewDate(year, time.July, 4),
		model.NewDate(year, time.December, 25),
	} {
		out = append(out, observed(fixed))
	}
	return append(out,
		nthWeekday(year, time.January, time.Monday, 3),    // MLK Day
		nthWeekday(year, time.February, time.Monday, 3),   // Presidents' Day
		lastWeekday(year, time.May, time.Monday),          // Memorial Day
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
	)
}

func observed(d model.Date) model.Date {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDays(-1)
	case time.Sunday:
		return d.AddDays(1)
	default:
		return d
	}
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) model.Date {
	first := model.NewDate(year, month, 1)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDays(offset + 7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) model.Date {
	last := model.NewDate(year, month+1, 0)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDays(-offset)
}
