// Package pricing implements the payment strategies that credit entitlement
// time: token payments with price locks, badge redemptions and signed
// vouchers. Each strategy is an independent engine holding a Ledger handle.
package pricing

import (
	"math/big"

	"subsync/core/events"
	nativecommon "subsync/native/common"
)

// Ledger is the capability every strategy needs from the entitlement ledger.
type Ledger interface {
	Extend(caller, account [20]byte, duration uint64) error
}

// TokenLedger moves fungible balances, including the native currency, on
// behalf of the strategies.
type TokenLedger interface {
	Balance(token string, account [20]byte) (*big.Int, error)
	Allowance(token string, owner, spender [20]byte) (*big.Int, error)
	Transfer(token string, from, to [20]byte, amount *big.Int) error
	TransferFrom(token string, spender, from, to [20]byte, amount *big.Int) error
}

// BadgeCollection exposes the badge credentials the strategies inspect and
// burn. Burn is restricted by the collection to authorized operators.
type BadgeCollection interface {
	OwnerOf(badge [20]byte, tokenID *big.Int) ([20]byte, bool, error)
	BalanceOf(badge, owner [20]byte) (uint64, error)
	Burn(operator, badge [20]byte, tokenID *big.Int) error
}

// module carries the wiring shared by the strategy engines.
type module struct {
	emitter events.Emitter
	ledger  Ledger
	pauses  nativecommon.PauseView
	owner   [20]byte
	address [20]byte
}

func newModule() module {
	return module{emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (m *module) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetPauses wires the pause view consulted before purchases.
func (m *module) SetPauses(p nativecommon.PauseView) { m.pauses = p }

func (m *module) guard() error {
	return nativecommon.Guard(m.pauses, nativecommon.ModulePricing)
}

// SetLedger injects the entitlement ledger credited by the strategy.
func (m *module) SetLedger(ledger Ledger) { m.ledger = ledger }

// SetOwner configures the administrator of the strategy tables.
func (m *module) SetOwner(owner [20]byte) { m.owner = owner }

// SetAddress configures the strategy's own account. It is the extender
// identity towards the ledger and the treasury for collected funds.
func (m *module) SetAddress(addr [20]byte) { m.address = addr }

// Address returns the strategy account.
func (m *module) Address() [20]byte { return m.address }

func (m *module) emit(evt events.Event) {
	if m.emitter == nil || evt == nil {
		return
	}
	m.emitter.Emit(evt)
}

func (m *module) requireOwner(caller [20]byte) error {
	if caller != m.owner {
		return ErrUnauthorized
	}
	return nil
}

func (m *module) extend(account [20]byte, duration uint64) error {
	if m.ledger == nil {
		return ErrLedgerNotConfigured
	}
	return m.ledger.Extend(m.address, account, duration)
}
