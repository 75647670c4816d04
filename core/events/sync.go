package events

import (
	"math/big"
	"strconv"

	"subsync/core/types"
)

const (
	TypeSyncAccountAdded         = "sync.account.added"
	TypeSyncAccountUpdated       = "sync.account.updated"
	TypeSyncMessageSent          = "sync.message.sent"
	TypeSyncWriterUpdated        = "sync.writer.updated"
	TypeSyncDestinationAdded     = "sync.destination.added"
	TypeSyncDestinationRemoved   = "sync.destination.removed"
	TypeSyncGasLimitUpdated      = "sync.gas_limit.updated"
	TypeReceiverMessageReceived  = "receiver.message.received"
	TypeReceiverConfigUpdated    = "receiver.config.updated"
	TypeMirrorSubscriptionSynced = "mirror.subscription.synced"
	TypeMirrorPauseUpdated       = "mirror.pause.updated"
)

// SyncLeafSaved is emitted when the synchronizer commits an entitlement
// window into the tree. New accounts and updates use distinct types.
type SyncLeafSaved struct {
	Account [20]byte
	Start   uint64
	End     uint64
	IsNew   bool
	Root    [32]byte
}

// EventType implements the Event interface.
func (e SyncLeafSaved) EventType() string {
	if e.IsNew {
		return TypeSyncAccountAdded
	}
	return TypeSyncAccountUpdated
}

func (e SyncLeafSaved) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"account":   formatAddress(e.Account),
		"startTime": formatUint(e.Start),
		"endTime":   formatUint(e.End),
		"root":      formatHash(e.Root),
	}}
}

// SyncMessageSent is emitted after a root is handed to the relay.
type SyncMessageSent struct {
	ChainID   uint16
	Timestamp *big.Int
	Root      [32]byte
	Fee       *big.Int
	Sequence  uint64
}

// EventType implements the Event interface.
func (SyncMessageSent) EventType() string { return TypeSyncMessageSent }

func (e SyncMessageSent) Event() *types.Event {
	return &types.Event{Type: TypeSyncMessageSent, Attributes: map[string]string{
		"chainId":   strconv.FormatUint(uint64(e.ChainID), 10),
		"timestamp": formatAmount(e.Timestamp),
		"root":      formatHash(e.Root),
		"fee":       formatAmount(e.Fee),
		"sequence":  formatUint(e.Sequence),
	}}
}

// SyncWriterUpdated records a change to the set of ledgers allowed to
// mutate the tree.
type SyncWriterUpdated struct {
	Writer  [20]byte
	Allowed bool
}

// EventType implements the Event interface.
func (SyncWriterUpdated) EventType() string { return TypeSyncWriterUpdated }

func (e SyncWriterUpdated) Event() *types.Event {
	return &types.Event{Type: TypeSyncWriterUpdated, Attributes: map[string]string{
		"writer":  formatAddress(e.Writer),
		"allowed": strconv.FormatBool(e.Allowed),
	}}
}

// SyncDestinationUpdated records a destination being added or removed.
type SyncDestinationUpdated struct {
	ChainID uint16
	Address [32]byte
	Removed bool
}

// EventType implements the Event interface.
func (e SyncDestinationUpdated) EventType() string {
	if e.Removed {
		return TypeSyncDestinationRemoved
	}
	return TypeSyncDestinationAdded
}

func (e SyncDestinationUpdated) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"chainId": strconv.FormatUint(uint64(e.ChainID), 10),
		"address": formatHash(e.Address),
	}}
}

// SyncGasLimitUpdated records a change of the relay gas limit.
type SyncGasLimitUpdated struct {
	GasLimit uint64
}

// EventType implements the Event interface.
func (SyncGasLimitUpdated) EventType() string { return TypeSyncGasLimitUpdated }

func (e SyncGasLimitUpdated) Event() *types.Event {
	return &types.Event{Type: TypeSyncGasLimitUpdated, Attributes: map[string]string{
		"gasLimit": formatUint(e.GasLimit),
	}}
}

// ReceiverMessageReceived is emitted for every accepted relay message.
type ReceiverMessageReceived struct {
	SourceChain  uint16
	Timestamp    *big.Int
	Root         [32]byte
	DeliveryHash [32]byte
	Refresh      bool
}

// EventType implements the Event interface.
func (ReceiverMessageReceived) EventType() string { return TypeReceiverMessageReceived }

func (e ReceiverMessageReceived) Event() *types.Event {
	return &types.Event{Type: TypeReceiverMessageReceived, Attributes: map[string]string{
		"sourceChain":  strconv.FormatUint(uint64(e.SourceChain), 10),
		"timestamp":    formatAmount(e.Timestamp),
		"root":         formatHash(e.Root),
		"deliveryHash": formatHash(e.DeliveryHash),
		"refresh":      strconv.FormatBool(e.Refresh),
	}}
}

// ReceiverConfigUpdated records a change of the trusted relay or source.
type ReceiverConfigUpdated struct {
	Relay         [20]byte
	SourceChain   uint16
	SourceAddress [32]byte
}

// EventType implements the Event interface.
func (ReceiverConfigUpdated) EventType() string { return TypeReceiverConfigUpdated }

func (e ReceiverConfigUpdated) Event() *types.Event {
	return &types.Event{Type: TypeReceiverConfigUpdated, Attributes: map[string]string{
		"relay":         formatAddress(e.Relay),
		"sourceChain":   strconv.FormatUint(uint64(e.SourceChain), 10),
		"sourceAddress": formatHash(e.SourceAddress),
	}}
}

// MirrorSubscriptionSynced is emitted when a proven window is merged on a
// secondary chain.
type MirrorSubscriptionSynced struct {
	Account [20]byte
	Start   uint64
	End     uint64
}

// EventType implements the Event interface.
func (MirrorSubscriptionSynced) EventType() string { return TypeMirrorSubscriptionSynced }

func (e MirrorSubscriptionSynced) Event() *types.Event {
	return &types.Event{Type: TypeMirrorSubscriptionSynced, Attributes: map[string]string{
		"account":   formatAddress(e.Account),
		"startTime": formatUint(e.Start),
		"endTime":   formatUint(e.End),
	}}
}

// MirrorPauseUpdated records the mirror being paused or resumed.
type MirrorPauseUpdated struct {
	Caller [20]byte
	Paused bool
}

// EventType implements the Event interface.
func (MirrorPauseUpdated) EventType() string { return TypeMirrorPauseUpdated }

func (e MirrorPauseUpdated) Event() *types.Event {
	return &types.Event{Type: TypeMirrorPauseUpdated, Attributes: map[string]string{
		"caller": formatAddress(e.Caller),
		"paused": strconv.FormatBool(e.Paused),
	}}
}
