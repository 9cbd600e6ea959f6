package exception

import "errors"

// Session errors
var (
	// ErrNoTradingSession is returned when a date is a weekend or a configured holiday.
	ErrNoTradingSession = errors.New("session: no trading session")
	ErrInvalidDate      = errors.New("session: invalid date")
)
