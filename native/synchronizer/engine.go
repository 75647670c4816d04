// Package synchronizer commits every entitlement window of the primary chain
// into a sparse Merkle tree and pushes the tree root to secondary chains.
package synchronizer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"subsync/core/events"
	nativecommon "subsync/native/common"
	"subsync/native/subscription"
	"subsync/storage/smt"
)

// DefaultGasLimit is the destination gas budget requested from the relay.
const DefaultGasLimit uint64 = 200_000

type engineState interface {
	SyncRoot() (common.Hash, error)
	SetSyncRoot(root common.Hash) error
	SyncWriterAllowed(writer [20]byte) (bool, error)
	SetSyncWriter(writer [20]byte, allowed bool) error
	SyncDestination(chainID uint16) ([32]byte, bool, error)
	SetSyncDestination(chainID uint16, address [32]byte) error
	DeleteSyncDestination(chainID uint16) error
	SyncDestinations() ([]uint16, error)
	SyncGasLimit() (uint64, bool, error)
	SetSyncGasLimit(limit uint64) error
}

// Relay is the message passing service connecting the chains.
type Relay interface {
	Quote(targetChain uint16, gasLimit uint64) (*big.Int, error)
	Send(sender [20]byte, targetChain uint16, targetAddress [32]byte, payload []byte, gasLimit uint64, fee *big.Int) (uint64, error)
	FeeCollector() [20]byte
}

// Bank moves native currency out of the synchronizer account.
type Bank interface {
	Transfer(token string, from, to [20]byte, amount *big.Int) error
}

// Receipt describes a root handed to the relay.
type Receipt struct {
	ChainID   uint16
	Timestamp *big.Int
	Root      common.Hash
	Fee       *big.Int
	Refund    *big.Int
	Sequence  uint64
}

// Engine owns the tree root of the primary chain. The root is stored in
// chain state; tree nodes live in the tree's own store.
type Engine struct {
	state   engineState
	tree    *smt.Tree
	relay   Relay
	bank    Bank
	pauses  nativecommon.PauseView
	emitter events.Emitter
	nowFn   func() int64
	owner   [20]byte
	address [20]byte
	native  string
}

// NewEngine creates a synchronizer with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTree configures the sparse Merkle tree.
func (e *Engine) SetTree(tree *smt.Tree) { e.tree = tree }

// SetRelay configures the outbound relay.
func (e *Engine) SetRelay(relay Relay) { e.relay = relay }

// SetBank configures the ledger used to pay fees and refunds.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

// SetNativeToken names the currency used for relay fees.
func (e *Engine) SetNativeToken(symbol string) { e.native = symbol }

// SetPauses wires the pause view consulted before pushing roots.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetOwner configures the administrator.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// SetAddress configures the synchronizer account, the sender of relayed
// messages.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the synchronizer account.
func (e *Engine) Address() [20]byte { return e.address }

// PaddedAddress returns the synchronizer account left padded to 32 bytes,
// the form receivers authenticate.
func (e *Engine) PaddedAddress() [32]byte {
	return common.BytesToHash(e.address[:])
}

// MaxDepth returns the depth of the configured tree.
func (e *Engine) MaxDepth() int {
	if e.tree == nil {
		return 0
	}
	return e.tree.MaxDepth()
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.tree == nil {
		return ErrTreeNotConfigured
	}
	return nil
}

// SaveSubscriptionData commits the window of account into the tree. Only
// registered writers may call it.
func (e *Engine) SaveSubscriptionData(caller, account [20]byte, start, end uint64, isNew bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	allowed, err := e.state.SyncWriterAllowed(caller)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrUnauthorized
	}
	root, err := e.state.SyncRoot()
	if err != nil {
		return err
	}
	window := &subscription.Window{Start: start, End: end}
	next, err := e.tree.Upsert(root, subscription.LeafKey(account), window.LeafValue())
	if err != nil {
		return fmt.Errorf("synchronizer: upsert %x: %w", account, err)
	}
	if err := e.state.SetSyncRoot(next); err != nil {
		return err
	}
	e.emit(events.SyncLeafSaved{Account: account, Start: start, End: end, IsNew: isNew, Root: next})
	return nil
}

// Root returns the current tree root.
func (e *Engine) Root() (common.Hash, error) {
	if e == nil || e.state == nil {
		return common.Hash{}, ErrNilState
	}
	return e.state.SyncRoot()
}

// Proof returns the inclusion or non-inclusion proof of account under the
// current root.
func (e *Engine) Proof(account [20]byte) (*smt.Proof, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	root, err := e.state.SyncRoot()
	if err != nil {
		return nil, err
	}
	return e.tree.Prove(root, subscription.LeafKey(account))
}

// GasLimit returns the configured destination gas budget.
func (e *Engine) GasLimit() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	limit, ok, err := e.state.SyncGasLimit()
	if err != nil {
		return 0, err
	}
	if !ok || limit == 0 {
		return DefaultGasLimit, nil
	}
	return limit, nil
}

// Destination returns the receiver address configured for chainID.
func (e *Engine) Destination(chainID uint16) ([32]byte, bool, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, false, ErrNilState
	}
	return e.state.SyncDestination(chainID)
}

// Destinations lists the configured destination chains.
func (e *Engine) Destinations() ([]uint16, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.SyncDestinations()
}

// QuoteCrossChainCost returns the native fee Sync requires for chainID.
func (e *Engine) QuoteCrossChainCost(chainID uint16) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.relay == nil {
		return nil, ErrRelayNotConfigured
	}
	if _, ok, err := e.state.SyncDestination(chainID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDestination, chainID)
	}
	limit, err := e.GasLimit()
	if err != nil {
		return nil, err
	}
	fee, err := e.relay.Quote(chainID, limit)
	if err != nil {
		return nil, err
	}
	if fee == nil {
		fee = new(big.Int)
	}
	return fee, nil
}

// Sync pushes the current root to chainID. value is the native currency
// attached by caller and already held by the synchronizer account; the
// relay fee is paid from it and the excess returned.
func (e *Engine) Sync(caller [20]byte, chainID uint16, value *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleSynchronizer); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, ErrBankNotConfigured
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, ErrInsufficientFee
	}
	destination, ok, err := e.state.SyncDestination(chainID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDestination, chainID)
	}
	fee, err := e.QuoteCrossChainCost(chainID)
	if err != nil {
		return nil, err
	}
	if value.Cmp(fee) < 0 {
		return nil, ErrInsufficientFee
	}
	limit, err := e.GasLimit()
	if err != nil {
		return nil, err
	}
	root, err := e.state.SyncRoot()
	if err != nil {
		return nil, err
	}
	msg := SyncMessage{Timestamp: big.NewInt(e.now()), Root: root}
	payload, err := EncodeSyncMessage(msg)
	if err != nil {
		return nil, err
	}

	refund := new(big.Int).Sub(value, fee)
	if fee.Sign() > 0 {
		if err := e.bank.Transfer(e.native, e.address, e.relay.FeeCollector(), fee); err != nil {
			return nil, err
		}
	}
	if refund.Sign() > 0 {
		if err := e.bank.Transfer(e.native, e.address, caller, refund); err != nil {
			return nil, err
		}
	}
	sequence, err := e.relay.Send(e.address, chainID, destination, payload, limit, fee)
	if err != nil {
		return nil, err
	}
	e.emit(events.SyncMessageSent{
		ChainID:   chainID,
		Timestamp: new(big.Int).Set(msg.Timestamp),
		Root:      root,
		Fee:       new(big.Int).Set(fee),
		Sequence:  sequence,
	})
	return &Receipt{
		ChainID:   chainID,
		Timestamp: msg.Timestamp,
		Root:      root,
		Fee:       fee,
		Refund:    refund,
		Sequence:  sequence,
	}, nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	return nil
}

// AddWriter authorizes a ledger to mutate the tree.
func (e *Engine) AddWriter(caller, writer [20]byte) error {
	return e.setWriter(caller, writer, true)
}

// RemoveWriter revokes a ledger.
func (e *Engine) RemoveWriter(caller, writer [20]byte) error {
	return e.setWriter(caller, writer, false)
}

func (e *Engine) setWriter(caller, writer [20]byte, allowed bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if writer == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := e.state.SetSyncWriter(writer, allowed); err != nil {
		return err
	}
	e.emit(events.SyncWriterUpdated{Writer: writer, Allowed: allowed})
	return nil
}

// AddDestination registers the receiver of chainID.
func (e *Engine) AddDestination(caller [20]byte, chainID uint16, address [32]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if chainID == 0 {
		return ErrInvalidChain
	}
	if address == ([32]byte{}) {
		return ErrZeroAddress
	}
	if _, ok, err := e.state.SyncDestination(chainID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %d", ErrDuplicateDestination, chainID)
	}
	if err := e.state.SetSyncDestination(chainID, address); err != nil {
		return err
	}
	e.emit(events.SyncDestinationUpdated{ChainID: chainID, Address: address})
	return nil
}

// RemoveDestination stops syncing to chainID.
func (e *Engine) RemoveDestination(caller [20]byte, chainID uint16) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	address, ok, err := e.state.SyncDestination(chainID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDestination, chainID)
	}
	if err := e.state.DeleteSyncDestination(chainID); err != nil {
		return err
	}
	e.emit(events.SyncDestinationUpdated{ChainID: chainID, Address: address, Removed: true})
	return nil
}

// SetGasLimit updates the destination gas budget used for quotes.
func (e *Engine) SetGasLimit(caller [20]byte, limit uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if limit == 0 {
		return ErrInvalidGasLimit
	}
	if err := e.state.SetSyncGasLimit(limit); err != nil {
		return err
	}
	e.emit(events.SyncGasLimitUpdated{GasLimit: limit})
	return nil
}
