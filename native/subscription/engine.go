package subscription

import (
	"math"
	"time"

	"subsync/core/events"
)

type engineState interface {
	SubscriptionGet(account [20]byte) (*Window, bool, error)
	SubscriptionPut(account [20]byte, window *Window) error
	SubscriptionExtenderAllowed(extender [20]byte) (bool, error)
	SetSubscriptionExtender(extender [20]byte, allowed bool) error
}

// SyncHook receives every window mutation so it can be committed for
// secondary chains.
type SyncHook interface {
	SaveSubscriptionData(caller, account [20]byte, start, end uint64, isNew bool) error
}

// RecoveryView is the read-only surface consumed by ownership recovery
// workflows.
type RecoveryView interface {
	HasActiveSubscription(account [20]byte) (bool, error)
	GetSubscriptionEndTime(account [20]byte) (uint64, error)
}

var _ RecoveryView = (*Engine)(nil)

// Engine is the entitlement ledger of the primary chain. Payment strategies
// credit time through Extend; everything else is a read.
type Engine struct {
	state   engineState
	emitter events.Emitter
	hook    SyncHook
	nowFn   func() int64
	owner   [20]byte
	address [20]byte
}

// NewEngine creates a ledger with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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

// SetSyncHook wires the synchronizer notified after every extension.
func (e *Engine) SetSyncHook(hook SyncHook) { e.hook = hook }

// SetOwner configures the address allowed to manage extenders.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// SetAddress configures the ledger's own address, used as the caller
// identity towards the synchronizer.
func (e *Engine) SetAddress(addr [20]byte) { e.address = addr }

// Address returns the ledger's own address.
func (e *Engine) Address() [20]byte { return e.address }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// AddExtender grants a payment strategy the right to credit time.
func (e *Engine) AddExtender(caller, extender [20]byte) error {
	return e.setExtender(caller, extender, true)
}

// RemoveExtender revokes a payment strategy.
func (e *Engine) RemoveExtender(caller, extender [20]byte) error {
	return e.setExtender(caller, extender, false)
}

func (e *Engine) setExtender(caller, extender [20]byte, allowed bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	if extender == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := e.state.SetSubscriptionExtender(extender, allowed); err != nil {
		return err
	}
	e.emit(events.SubscriptionExtenderUpdated{Extender: extender, Allowed: allowed})
	return nil
}

// Extend credits duration seconds to account. The end time grows by exactly
// duration even when the entitlement already lapsed, so the ledger records
// cumulative paid time rather than resetting to now.
func (e *Engine) Extend(caller, account [20]byte, duration uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if duration == 0 {
		return ErrZeroDuration
	}
	allowed, err := e.state.SubscriptionExtenderAllowed(caller)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrUnauthorized
	}
	window, exists, err := e.state.SubscriptionGet(account)
	if err != nil {
		return err
	}
	isNew := !exists || !window.HasRecord()
	if isNew {
		now := e.now()
		// A zero start would read back as "no record" and drop the credit.
		if now == 0 {
			return ErrInvalidClock
		}
		window = &Window{Start: now, End: now}
	}
	if window.End > math.MaxUint64-duration {
		return ErrEndOverflow
	}
	window.End += duration
	if err := e.state.SubscriptionPut(account, window); err != nil {
		return err
	}
	if e.hook != nil {
		if err := e.hook.SaveSubscriptionData(e.address, account, window.Start, window.End, isNew); err != nil {
			return err
		}
	}
	e.emit(events.SubscriptionExtended{Account: account, Duration: duration, NewEnd: window.End})
	return nil
}

// Subscription returns the stored window, if any.
func (e *Engine) Subscription(account [20]byte) (*Window, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	window, ok, err := e.state.SubscriptionGet(account)
	if err != nil || !ok {
		return nil, false, err
	}
	return window.Clone(), window.HasRecord(), nil
}

// HasSubscription reports whether account was ever credited.
func (e *Engine) HasSubscription(account [20]byte) (bool, error) {
	_, ok, err := e.Subscription(account)
	return ok, err
}

// HasActiveSubscription reports whether the entitlement covers the current
// time.
func (e *Engine) HasActiveSubscription(account [20]byte) (bool, error) {
	window, _, err := e.Subscription(account)
	if err != nil {
		return false, err
	}
	return window.Active(e.now()), nil
}

// HasSubscriptionDebt reports whether a recorded entitlement lapsed.
func (e *Engine) HasSubscriptionDebt(account [20]byte) (bool, error) {
	window, _, err := e.Subscription(account)
	if err != nil {
		return false, err
	}
	return window.InDebt(e.now()), nil
}

// GetSubscriptionStartTime returns the first credit time, or zero.
func (e *Engine) GetSubscriptionStartTime(account [20]byte) (uint64, error) {
	window, ok, err := e.Subscription(account)
	if err != nil || !ok {
		return 0, err
	}
	return window.Start, nil
}

// GetSubscriptionEndTime returns the end time. Accounts without a record
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
