package exception

import "errors"

// Feed controller errors
var (
	ErrInvalidState       = errors.New("feed: invalid state")
	ErrUnsupportedMode    = errors.New("feed: unsupported mode")
	ErrInvalidConfig      = errors.New("feed: invalid config")
	ErrMissingCredentials = errors.New("feed: missing credentials")
	ErrInvalidWindow      = errors.New("feed: invalid replay window")
)

// Publisher errors
var (
	ErrSubscriberFailure = errors.New("bus: subscriber failure")
	ErrNilCallback       = errors.New("bus: nil callback")
	ErrMixedPrimary      = errors.New("bus: second primary symbol in session")
)
