package subscription

import "errors"

var (
	ErrNilState     = errors.New("subscription: state not configured")
	ErrZeroDuration = errors.New("subscription: duration must be positive")
	ErrUnauthorized = errors.New("subscription: unauthorized")
	ErrEndOverflow  = errors.New("subscription: end time overflow")
	ErrZeroAddress  = errors.New("subscription: zero address")
	ErrInvalidClock = errors.New("subscription: clock must be after the epoch")
)
