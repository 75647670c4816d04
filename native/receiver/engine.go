// Package receiver accepts sync roots relayed from the primary chain and
// keeps the history of roots the mirror may verify proofs against.
package receiver

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"subsync/core/events"
	"subsync/native/synchronizer"
)

type engineState interface {
	ReceiverConfig() (*Config, bool, error)
	SetReceiverConfig(cfg *Config) error
	ReceiverCheckpoint() (*Checkpoint, bool, error)
	SetReceiverCheckpoint(cp *Checkpoint) error
	ReceiverRootHistory() ([]common.Hash, error)
	SetReceiverRootHistory(roots []common.Hash) error
	ReceiverRootKnown(root common.Hash) (bool, error)
	SetReceiverRootKnown(root common.Hash, known bool) error
}

// Engine is the secondary-chain endpoint of the relay.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	owner    [20]byte
	capacity int
}

// NewEngine creates a receiver with a no-op emitter and unbounded history.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
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

// SetOwner configures the administrator.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

// SetHistoryCapacity bounds the number of roots kept verifiable. Zero keeps
// every root. Once full, the oldest root is evicted.
func (e *Engine) SetHistoryCapacity(n int) {
	if n < 0 {
		n = 0
	}
	e.capacity = n
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := e.state.ReceiverConfig()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return &Config{}, nil
	}
	return cfg, nil
}

// Config returns the trusted relay and source.
func (e *Engine) Config() (*Config, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

// ReceiveMessage is invoked by the relay. Only the configured relay may call
// it, and only for messages originating from the configured synchronizer.
// additional is the relay's extra payload list and is ignored.
func (e *Engine) ReceiveMessage(caller [20]byte, payload []byte, additional [][]byte, sourceAddress [32]byte, sourceChain uint16, deliveryHash [32]byte) error {
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if cfg.Relay == ([20]byte{}) || caller != cfg.Relay {
		return ErrUnauthorizedRelay
	}
	if sourceChain != cfg.SourceChain {
		return fmt.Errorf("%w: %d", ErrInvalidSourceChain, sourceChain)
	}
	if sourceAddress != cfg.SourceAddress {
		return ErrInvalidSourceAddress
	}
	msg, err := synchronizer.DecodeSyncMessage(payload)
	if err != nil {
		return err
	}

	latest, ok, err := e.state.ReceiverCheckpoint()
	if err != nil {
		return err
	}
	refresh := false
	if ok && latest != nil {
		cmp := msg.Timestamp.Cmp(latest.Timestamp)
		switch {
		case msg.Root == latest.Root && cmp >= 0:
			refresh = true
		case cmp <= 0:
			return fmt.Errorf("%w: timestamp %s not after %s", ErrOutdatedMessage, msg.Timestamp, latest.Timestamp)
		}
	}
	if !refresh {
		if err := e.record(msg.Root); err != nil {
			return err
		}
	}
	cp := &Checkpoint{Root: msg.Root, Timestamp: new(big.Int).Set(msg.Timestamp)}
	if err := e.state.SetReceiverCheckpoint(cp); err != nil {
		return err
	}
	e.emit(events.ReceiverMessageReceived{
		SourceChain:  sourceChain,
		Timestamp:    new(big.Int).Set(msg.Timestamp),
		Root:         msg.Root,
		DeliveryHash: deliveryHash,
		Refresh:      refresh,
	})
	return nil
}

// record appends root to the ring, evicting the oldest entries beyond
// capacity. A root that is already known moves to the newest slot so the
// latest root is never the next one evicted.
func (e *Engine) record(root common.Hash) error {
	known, err := e.state.ReceiverRootKnown(root)
	if err != nil {
		return err
	}
	history, err := e.state.ReceiverRootHistory()
	if err != nil {
		return err
	}
	if known {
		kept := history[:0:0]
		for _, h := range history {
			if h != root {
				kept = append(kept, h)
			}
		}
		history = kept
	}
	history = append(history, root)
	if !known {
		if err := e.state.SetReceiverRootKnown(root, true); err != nil {
			return err
		}
	}
	for e.capacity > 0 && len(history) > e.capacity {
		if err := e.state.SetReceiverRootKnown(history[0], false); err != nil {
			return err
		}
		history = history[1:]
	}
	return e.state.SetReceiverRootHistory(history)
}

// SetRelay replaces the trusted relay.
func (e *Engine) SetRelay(caller, relay [20]byte) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if relay == ([20]byte{}) {
		return ErrZeroAddress
	}
	cfg.Relay = relay
	return e.saveConfig(cfg)
}

// SetSource replaces the trusted source chain and synchronizer address.
func (e *Engine) SetSource(caller [20]byte, chainID uint16, address [32]byte) error {
	cfg, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if chainID == 0 {
		return ErrInvalidChain
	}
	if address == ([32]byte{}) {
		return ErrZeroAddress
	}
	cfg.SourceChain = chainID
	cfg.SourceAddress = address
	return e.saveConfig(cfg)
}

func (e *Engine) requireOwner(caller [20]byte) (*Config, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if caller != e.owner {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

func (e *Engine) saveConfig(cfg *Config) error {
	if err := e.state.SetReceiverConfig(cfg); err != nil {
		return err
	}
	e.emit(events.ReceiverConfigUpdated{
		Relay:         cfg.Relay,
		SourceChain:   cfg.SourceChain,
		SourceAddress: cfg.SourceAddress,
	})
	return nil
}

// LatestRoot returns the most recently accepted root.
func (e *Engine) LatestRoot() (common.Hash, bool, error) {
	if e == nil || e.state == nil {
		return common.Hash{}, false, ErrNilState
	}
	cp, ok, err := e.state.ReceiverCheckpoint()
	if err != nil || !ok || cp == nil {
		return common.Hash{}, false, err
	}
	return cp.Root, true, nil
}

// LastSyncTimestamp returns the timestamp of the last accepted message, or
// zero before the first one.
func (e *Engine) LastSyncTimestamp() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cp, ok, err := e.state.ReceiverCheckpoint()
	if err != nil {
		return nil, err
	}
	if !ok || cp == nil || cp.Timestamp == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(cp.Timestamp), nil
}

// IsRootKnown reports whether root is still in the history.
func (e *Engine) IsRootKnown(root common.Hash) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	return e.state.ReceiverRootKnown(root)
}

// RootHistory returns the retained roots, oldest first.
func (e *Engine) RootHistory() ([]common.Hash, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	history, err := e.state.ReceiverRootHistory()
	if err != nil {
		return nil, err
	}
	return append([]common.Hash(nil), history...), nil
}
