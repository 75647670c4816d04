package bank

import "errors"

var (
	ErrNilState          = errors.New("bank: state not configured")
	ErrUnknownToken      = errors.New("bank: unknown token")
	ErrInvalidAmount     = errors.New("bank: invalid amount")
	ErrInsufficientFunds = errors.New("bank: insufficient balance")
	ErrInsufficientAllow = errors.New("bank: insufficient allowance")
	ErrZeroAddress       = errors.New("bank: zero address")
	ErrUnauthorized      = errors.New("bank: unauthorized")
	ErrBadgeExists       = errors.New("bank: badge already minted")
	ErrBadgeNotFound     = errors.New("bank: badge not found")
	ErrInvalidTokenID    = errors.New("bank: invalid badge token id")
)
