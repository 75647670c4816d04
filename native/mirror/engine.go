// Package mirror keeps a read-only copy of primary-chain entitlements on a
// secondary chain. Windows are only adopted with a proof against a root the
// receiver accepted.
package mirror

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"subsync/core/events"
	nativecommon "subsync/native/common"
	"subsync/native/subscription"
	"subsync/storage/smt"
)

type engineState interface {
	MirrorGet(account [20]byte) (*subscription.Window, bool, error)
	MirrorPut(account [20]byte, window *subscription.Window) error
	IsPaused(module string) bool
	SetModulePaused(module string, paused bool) error
}

// RootHistory exposes the roots accepted by the receiver.
type RootHistory interface {
	IsRootKnown(root common.Hash) (bool, error)
}

var _ subscription.RecoveryView = (*Engine)(nil)

// Engine is the secondary-chain ledger.
type Engine struct {
	state    engineState
	history  RootHistory
	emitter  events.Emitter
	nowFn    func() int64
	owner    [20]byte
	maxDepth int
}

// NewEngine creates a mirror with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRootHistory configures the receiver consulted for known roots.
func (e *Engine) SetRootHistory(history RootHistory) { e.history = history }

// SetMaxDepth configures the tree depth proofs must be built for.
func (e *Engine) SetMaxDepth(depth int) { e.maxDepth = depth }

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

// SetOwner configures the administrator allowed to pause the mirror.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

func (e *Engine) now() uint64 {
	var ts int64
	if e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// SyncSubscription adopts window for account once proof shows the primary
// chain committed it under a root the receiver accepted. The stored start
// is set once; the stored end only grows.
func (e *Engine) SyncSubscription(account [20]byte, window subscription.Window, proof *smt.Proof) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.state, nativecommon.ModuleMirror); err != nil {
		return err
	}
	if e.history == nil {
		return ErrHistoryNotConfigured
	}
	if window.Start == 0 || window.End < window.Start {
		return ErrInvalidWindow
	}
	if proof == nil {
		return ErrInvalidProof
	}
	known, err := e.history.IsRootKnown(proof.Root)
	if err != nil {
		return err
	}
	if !known {
		return ErrUnknownRoot
	}
	if proof.Key != subscription.LeafKey(account) {
		return ErrInvalidProofKey
	}
	if proof.Value != window.LeafValue() {
		return ErrInvalidProofValue
	}
	if !proof.Existence || !smt.Verify(proof, e.maxDepth) {
		return ErrInvalidProof
	}

	stored, ok, err := e.state.MirrorGet(account)
	if err != nil {
		return err
	}
	if !ok || stored == nil {
		stored = &subscription.Window{}
	}
	if stored.Start == 0 {
		stored.Start = window.Start
	}
	if window.End > stored.End {
		stored.End = window.End
	}
	if err := e.state.MirrorPut(account, stored); err != nil {
		return err
	}
	e.emit(events.MirrorSubscriptionSynced{Account: account, Start: stored.Start, End: stored.End})
	return nil
}

// Pause stops SyncSubscription until Unpause.
func (e *Engine) Pause(caller [20]byte) error { return e.setPaused(caller, true) }

// Unpause resumes SyncSubscription.
func (e *Engine) Unpause(caller [20]byte) error { return e.setPaused(caller, false) }

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	if err := e.state.SetModulePaused(nativecommon.ModuleMirror, paused); err != nil {
		return err
	}
	e.emit(events.MirrorPauseUpdated{Caller: caller, Paused: paused})
	return nil
}

// Paused reports whether the mirror is paused.
func (e *Engine) Paused() (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	return e.state.IsPaused(nativecommon.ModuleMirror), nil
}

// Subscription returns the mirrored window, if any.
func (e *Engine) Subscription(account [20]byte) (*subscription.Window, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	window, ok, err := e.state.MirrorGet(account)
	if err != nil || !ok {
		return nil, false, err
	}
	return window.Clone(), window.HasRecord(), nil
}

// HasSubscription reports whether a window was ever mirrored for account.
func (e *Engine) HasSubscription(account [20]byte) (bool, error) {
	_, ok, err := e.Subscription(account)
	return ok, err
}

// HasActiveSubscription reports whether the mirrored window covers the
// current time.
func (e *Engine) HasActiveSubscription(account [20]byte) (bool, error) {
	window, _, err := e.Subscription(account)
	if err != nil {
		return false, err
	}
	return window.Active(e.now()), nil
}

// HasSubscriptionDebt reports whether the mirrored window lapsed.
func (e *Engine) HasSubscriptionDebt(account [20]byte) (bool, error) {
	window, _, err := e.Subscription(account)
	if err != nil {
		return false, err
	}
	return window.InDebt(e.now()), nil
}

// GetSubscriptionStartTime returns the mirrored start, or zero.
func (e *Engine) GetSubscriptionStartTime(account [20]byte) (uint64, error) {
	window, ok, err := e.Subscription(account)
	if err != nil || !ok {
		return 0, err
	}
	return window.Start, nil
}

// GetSubscriptionEndTime returns the mirrored end. Accounts without a record
// report the current time.
func (e *Engine) GetSubscriptionEndTime(account [20]byte) (uint64, error) {
	window, ok, err := e.Subscription(account)
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.now(), nil
	}
	return window.End, nil
}
