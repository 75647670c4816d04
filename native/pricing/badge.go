package pricing

import (
	"math/big"

	"subsync/core/events"
)

type badgeState interface {
	BadgeCredit(badge [20]byte) (uint64, bool, error)
	SetBadgeCredit(badge [20]byte, duration uint64) error
}

// BadgeEngine credits a fixed duration for every badge token surrendered.
type BadgeEngine struct {
	module
	state  badgeState
	badges BadgeCollection
}

// NewBadgeEngine creates a badge redemption strategy.
func NewBadgeEngine() *BadgeEngine {
	return &BadgeEngine{module: newModule()}
}

// SetState configures the state backend used by the engine.
func (e *BadgeEngine) SetState(state badgeState) { e.state = state }

// SetBadgeCollection configures the collection that owns and burns badges.
func (e *BadgeEngine) SetBadgeCollection(badges BadgeCollection) { e.badges = badges }

// Credit returns the duration credited per token of badge.
func (e *BadgeEngine) Credit(badge [20]byte) (uint64, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, ErrNilState
	}
	return e.state.BadgeCredit(badge)
}

// SetBadgeCredit registers badge with the duration each token is worth.
// Zero unregisters it.
func (e *BadgeEngine) SetBadgeCredit(caller, badge [20]byte, duration uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if badge == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := e.state.SetBadgeCredit(badge, duration); err != nil {
		return err
	}
	e.emit(events.BadgeCreditUpdated{Badge: badge, Duration: duration})
	return nil
}

// BuySubscriptionWithBadge burns tokenID of badge owned by caller and credits
// recipient with the badge's registered duration.
func (e *BadgeEngine) BuySubscriptionWithBadge(caller, recipient, badge [20]byte, tokenID *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if err := e.guard(); err != nil {
		return 0, err
	}
	if e.badges == nil {
		return 0, ErrBadgesNotConfigured
	}
	if recipient == ([20]byte{}) {
		return 0, ErrZeroAddress
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return 0, ErrNotBadgeOwner
	}
	credit, ok, err := e.state.BadgeCredit(badge)
	if err != nil {
		return 0, err
	}
	if !ok || credit == 0 {
		return 0, ErrUnsupportedBadge
	}
	owner, exists, err := e.badges.OwnerOf(badge, tokenID)
	if err != nil {
		return 0, err
	}
	if !exists || owner != caller {
		return 0, ErrNotBadgeOwner
	}
	if err := e.extend(recipient, credit); err != nil {
		return 0, err
	}
	if err := e.badges.Burn(e.address, badge, tokenID); err != nil {
		return 0, err
	}
	e.emit(events.BadgeRedeemed{
		Caller:    caller,
		Recipient: recipient,
		Badge:     badge,
		TokenID:   new(big.Int).Set(tokenID),
		Duration:  credit,
	})
	return credit, nil
}
