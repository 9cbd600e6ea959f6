package exception

import "errors"

// Bar source and alignment errors
var (
	ErrDataUnavailable = errors.New("data: unavailable")
	ErrDuplicateBar    = errors.New("data: duplicate bar")
	ErrMalformedBar    = errors.New("data: malformed bar")
	ErrNonMonotonic    = errors.New("align: primary bar out of order")
)
