package receiver

import "errors"

var (
	ErrNilState             = errors.New("receiver: state not configured")
	ErrUnauthorized         = errors.New("receiver: unauthorized")
	ErrUnauthorizedRelay    = errors.New("receiver: caller is not the configured relay")
	ErrInvalidSourceChain   = errors.New("receiver: unexpected source chain")
	ErrInvalidSourceAddress = errors.New("receiver: unexpected source address")
	ErrZeroAddress          = errors.New("receiver: zero address")
	ErrInvalidChain         = errors.New("receiver: invalid chain id")
	ErrOutdatedMessage      = errors.New("receiver: outdated sync message")
)
