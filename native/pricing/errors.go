package pricing

import "errors"

var (
	ErrNilState            = errors.New("pricing: state not configured")
	ErrLedgerNotConfigured = errors.New("pricing: ledger not configured")
	ErrBankNotConfigured   = errors.New("pricing: token ledger not configured")
	ErrBadgesNotConfigured = errors.New("pricing: badge collection not configured")
	ErrUnauthorized        = errors.New("pricing: unauthorized")
	ErrZeroAddress         = errors.New("pricing: zero address")
	ErrZeroAmount          = errors.New("pricing: zero amount")
	ErrZeroDuration        = errors.New("pricing: zero duration")

	ErrUnsupportedToken      = errors.New("pricing: unsupported token")
	ErrDurationTooShort      = errors.New("pricing: duration below base payment period")
	ErrInvalidPrice          = errors.New("pricing: invalid price")
	ErrInvalidFactor         = errors.New("pricing: duration factor must be within (0, 100%]")
	ErrInvalidDiscount       = errors.New("pricing: discount must be within (0, 100%]")
	ErrInsufficientPayment   = errors.New("pricing: insufficient payment")
	ErrUnexpectedValue       = errors.New("pricing: native value sent for non-native token")
	ErrInsufficientAllowance = errors.New("pricing: insufficient allowance")

	ErrUnsupportedBadge = errors.New("pricing: badge not registered")
	ErrNotBadgeOwner    = errors.New("pricing: caller does not own badge")

	ErrSignerNotSet     = errors.New("pricing: voucher signer not configured")
	ErrInvalidSignature = errors.New("pricing: invalid voucher signature")
)
