package events

import (
	"subsync/core/types"
)

const (
	// TypeSubscriptionExtended is emitted whenever the entitlement ledger
	// credits time to an account.
	TypeSubscriptionExtended = "subscription.extended"
	// TypeSubscriptionExtenderUpdated is emitted when a payment strategy is
	// granted or revoked the right to extend subscriptions.
	TypeSubscriptionExtenderUpdated = "subscription.extender.updated"
)

// SubscriptionExtended captures a ledger credit.
type SubscriptionExtended struct {
	Account  [20]byte
	Duration uint64
	NewEnd   uint64
}

// EventType implements the Event interface.
func (SubscriptionExtended) EventType() string { return TypeSubscriptionExtended }

func (e SubscriptionExtended) Event() *types.Event {
	return &types.Event{Type: TypeSubscriptionExtended, Attributes: map[string]string{
		"account":  formatAddress(e.Account),
		"duration": formatUint(e.Duration),
		"endTime":  formatUint(e.NewEnd),
	}}
}

// SubscriptionExtenderUpdated records a change to the extender allow list.
type SubscriptionExtenderUpdated struct {
	Extender [20]byte
	Allowed  bool
}

// EventType implements the Event interface.
func (SubscriptionExtenderUpdated) EventType() string { return TypeSubscriptionExtenderUpdated }

func (e SubscriptionExtenderUpdated) Event() *types.Event {
	allowed := "false"
	if e.Allowed {
		allowed = "true"
	}
	return &types.Event{Type: TypeSubscriptionExtenderUpdated, Attributes: map[string]string{
		"extender": formatAddress(e.Extender),
		"allowed":  allowed,
	}}
}
