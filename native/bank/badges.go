package bank

import (
	"fmt"
	"math/big"

	"subsync/core/events"
)

type badgeState interface {
	BadgeOwner(badge [20]byte, tokenID *big.Int) ([20]byte, bool, error)
	SetBadgeOwner(badge [20]byte, tokenID *big.Int, owner [20]byte) error
	DeleteBadgeOwner(badge [20]byte, tokenID *big.Int) error
	BadgeBalance(badge, owner [20]byte) (uint64, error)
	SetBadgeBalance(badge, owner [20]byte, count uint64) error
	BadgeBurnerAllowed(badge, operator [20]byte) (bool, error)
	SetBadgeBurner(badge, operator [20]byte, allowed bool) error
}

// BadgeRegistry tracks non-fungible badge credentials per collection
// address. Only the registry admin mints; holders and approved operators
// burn.
type BadgeRegistry struct {
	state   badgeState
	emitter events.Emitter
	admin   [20]byte
}

// NewBadgeRegistry creates a registry with a no-op emitter.
func NewBadgeRegistry() *BadgeRegistry {
	return &BadgeRegistry{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (r *BadgeRegistry) SetState(state badgeState) { r.state = state }

// SetAdmin configures the account allowed to mint and approve operators.
func (r *BadgeRegistry) SetAdmin(admin [20]byte) { r.admin = admin }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (r *BadgeRegistry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *BadgeRegistry) emit(evt events.Event) {
	if r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(evt)
}

func (r *BadgeRegistry) ready(tokenID *big.Int) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return ErrInvalidTokenID
	}
	return nil
}

// OwnerOf returns the holder of a badge.
func (r *BadgeRegistry) OwnerOf(badge [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	if err := r.ready(tokenID); err != nil {
		return [20]byte{}, false, err
	}
	return r.state.BadgeOwner(badge, tokenID)
}

// BalanceOf counts the badges of a collection held by owner.
func (r *BadgeRegistry) BalanceOf(badge, owner [20]byte) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, ErrNilState
	}
	return r.state.BadgeBalance(badge, owner)
}

// Mint issues tokenID of the badge collection to owner.
func (r *BadgeRegistry) Mint(caller, badge [20]byte, tokenID *big.Int, owner [20]byte) error {
	if err := r.ready(tokenID); err != nil {
		return err
	}
	if caller != r.admin {
		return ErrUnauthorized
	}
	if badge == ([20]byte{}) || owner == ([20]byte{}) {
		return ErrZeroAddress
	}
	if _, exists, err := r.state.BadgeOwner(badge, tokenID); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s", ErrBadgeExists, tokenID)
	}
	if err := r.state.SetBadgeOwner(badge, tokenID, owner); err != nil {
		return err
	}
	count, err := r.state.BadgeBalance(badge, owner)
	if err != nil {
		return err
	}
	if err := r.state.SetBadgeBalance(badge, owner, count+1); err != nil {
		return err
	}
	r.emit(events.BadgeMinted{Badge: badge, TokenID: new(big.Int).Set(tokenID), Owner: owner})
	return nil
}

// SetBurner approves or revokes operator as a burner for every badge of the
// collection.
func (r *BadgeRegistry) SetBurner(caller, badge, operator [20]byte, allowed bool) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if caller != r.admin {
		return ErrUnauthorized
	}
	if operator == ([20]byte{}) {
		return ErrZeroAddress
	}
	return r.state.SetBadgeBurner(badge, operator, allowed)
}

// Burn destroys a badge. The holder or an approved operator may burn it.
func (r *BadgeRegistry) Burn(operator, badge [20]byte, tokenID *big.Int) error {
	if err := r.ready(tokenID); err != nil {
		return err
	}
	owner, exists, err := r.state.BadgeOwner(badge, tokenID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrBadgeNotFound, tokenID)
	}
	if operator != owner {
		allowed, err := r.state.BadgeBurnerAllowed(badge, operator)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrUnauthorized
		}
	}
	if err := r.state.DeleteBadgeOwner(badge, tokenID); err != nil {
		return err
	}
	count, err := r.state.BadgeBalance(badge, owner)
	if err != nil {
		return err
	}
	if count > 0 {
		count--
	}
	if err := r.state.SetBadgeBalance(badge, owner, count); err != nil {
		return err
	}
	r.emit(events.BadgeBurned{Badge: badge, TokenID: new(big.Int).Set(tokenID), Owner: owner, Operator: operator})
	return nil
}
