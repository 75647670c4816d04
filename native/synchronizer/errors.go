package synchronizer

import "errors"

var (
	ErrNilState             = errors.New("synchronizer: state not configured")
	ErrTreeNotConfigured    = errors.New("synchronizer: tree not configured")
	ErrRelayNotConfigured   = errors.New("synchronizer: relay not configured")
	ErrBankNotConfigured    = errors.New("synchronizer: bank not configured")
	ErrUnauthorized         = errors.New("synchronizer: unauthorized")
	ErrZeroAddress          = errors.New("synchronizer: zero address")
	ErrInvalidChain         = errors.New("synchronizer: invalid chain id")
	ErrUnknownDestination   = errors.New("synchronizer: unknown destination")
	ErrDuplicateDestination = errors.New("synchronizer: destination already configured")
	ErrInsufficientFee      = errors.New("synchronizer: insufficient fee")
	ErrInvalidGasLimit      = errors.New("synchronizer: invalid gas limit")
	ErrMalformedMessage     = errors.New("synchronizer: malformed sync message")
)
