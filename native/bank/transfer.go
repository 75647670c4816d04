// Package bank implements the fungible token ledger and the badge registry
// the payment strategies settle against. Both are backed by chain state so
// transfers roll back with the transaction that issued them.
package bank

import (
	"fmt"
	"math/big"
	"strings"

	"subsync/core/events"
)

type tokenState interface {
	TokenExists(symbol string) bool
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	BankAllowance(symbol string, owner, spender [20]byte) (*big.Int, error)
	SetBankAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error
}

// Ledger holds balances and allowances per registered token symbol.
type Ledger struct {
	state   tokenState
	emitter events.Emitter
}

// NewLedger creates a ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state tokenState) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt events.Event) {
	if l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) token(symbol string) (string, error) {
	if l == nil || l.state == nil {
		return "", ErrNilState
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" || !l.state.TokenExists(normalized) {
		return "", fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}
	return normalized, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Balance returns the balance of account in token.
func (l *Ledger) Balance(token string, account [20]byte) (*big.Int, error) {
	symbol, err := l.token(token)
	if err != nil {
		return nil, err
	}
	return l.state.Balance(account[:], symbol)
}

// Allowance returns how much spender may pull from owner.
func (l *Ledger) Allowance(token string, owner, spender [20]byte) (*big.Int, error) {
	symbol, err := l.token(token)
	if err != nil {
		return nil, err
	}
	return l.state.BankAllowance(symbol, owner, spender)
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(token string, owner, spender [20]byte, amount *big.Int) error {
	symbol, err := l.token(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if spender == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := l.state.SetBankAllowance(symbol, owner, spender, amount); err != nil {
		return err
	}
	l.emit(events.Approval{Asset: symbol, Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Mint credits amount to account. It is used for genesis allocations.
func (l *Ledger) Mint(token string, to [20]byte, amount *big.Int) error {
	symbol, err := l.token(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.state.Balance(to[:], symbol)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(to[:], symbol, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emit(events.Transfer{Asset: symbol, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from one account to another. Zero amounts are a
// no-op.
func (l *Ledger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	symbol, err := l.token(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return l.move(symbol, from, to, amount)
}

// TransferFrom moves amount from owner to recipient against the allowance
// granted to spender.
func (l *Ledger) TransferFrom(token string, spender, from, to [20]byte, amount *big.Int) error {
	symbol, err := l.token(token)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := l.state.BankAllowance(symbol, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllow
	}
	if err := l.state.SetBankAllowance(symbol, from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return l.move(symbol, from, to, amount)
}

func (l *Ledger) move(symbol string, from, to [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	fromBalance, err := l.state.Balance(from[:], symbol)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientFunds, fromBalance, symbol, amount)
	}
	if err := l.state.SetBalance(from[:], symbol, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.state.Balance(to[:], symbol)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(to[:], symbol, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	l.emit(events.Transfer{Asset: symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}
