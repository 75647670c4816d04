package mirror

import "errors"

var (
	ErrNilState             = errors.New("mirror: state not configured")
	ErrHistoryNotConfigured = errors.New("mirror: root history not configured")
	ErrUnauthorized         = errors.New("mirror: unauthorized")
	ErrUnknownRoot          = errors.New("mirror: unknown root")
	ErrInvalidProofKey      = errors.New("mirror: invalid proof key")
	ErrInvalidProofValue    = errors.New("mirror: invalid proof value")
	ErrInvalidProof         = errors.New("mirror: invalid proof")
	ErrInvalidWindow        = errors.New("mirror: invalid window")
)
