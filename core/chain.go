// Package core assembles the native modules into the primary chain, which
// owns the entitlement ledger, and the secondary chains, which mirror it.
// Every mutating call runs as one atomic transaction against the chain
// state.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"subsync/core/events"
	"subsync/core/state"
	"subsync/observability"
	"subsync/storage"
	"subsync/storage/trie"
)

var (
	ErrChainClosed    = errors.New("core: chain closed")
	ErrNoSubscription = errors.New("core: no subscription")
)

// ModuleAddress derives the account a native module holds funds under.
func ModuleAddress(name string) [20]byte {
	var addr [20]byte
	copy(addr[:], crypto.Keccak256([]byte("subsync/module/" + name))[12:])
	return addr
}

// Chain serializes transactions against one state manager. Events emitted by
// the modules collect in a shared buffer and only reach the sink once the
// transaction succeeded.
type Chain struct {
	mu      sync.Mutex
	name    string
	db      storage.Database
	state   *state.Manager
	buffer  *events.Buffer
	sink    events.Emitter
	logger  *slog.Logger
	metrics *observability.ChainMetrics
	tracer  trace.Tracer
	nowFn   func() int64
	closed  bool
	fresh   bool
}

func headKey(name string) []byte {
	return []byte("chain/" + name + "/head")
}

// openChain loads the last committed state of name from db, or an empty
// state when nothing was committed yet.
func openChain(name string, db storage.Database, logger *slog.Logger) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("core: %s: database required", name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	var root []byte
	ok, err := db.Has(headKey(name))
	if err != nil {
		return nil, err
	}
	if ok {
		if root, err = db.Get(headKey(name)); err != nil {
			return nil, err
		}
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("core: %s: open state: %w", name, err)
	}
	return &Chain{
		name:    name,
		db:      db,
		state:   state.NewManager(tr),
		buffer:  &events.Buffer{},
		sink:    events.NoopEmitter{},
		logger:  logger.With(slog.String("chain", name)),
		metrics: observability.Chain(),
		tracer:  otel.Tracer("subsync/core"),
		nowFn:   func() int64 { return time.Now().Unix() },
		fresh:   !ok,
	}, nil
}

// Fresh reports whether the chain had no committed head when opened.
func (c *Chain) Fresh() bool { return c.fresh }

// Name returns the chain label used in logs and metrics.
func (c *Chain) Name() string { return c.name }

// SetEventSink routes published events to sink. Passing nil discards them.
func (c *Chain) SetEventSink(sink events.Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sink == nil {
		c.sink = events.NoopEmitter{}
		return
	}
	c.sink = sink
}

// SetNowFunc overrides the block clock shared by the chain's modules.
func (c *Chain) SetNowFunc(now func() int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	c.nowFn = now
}

func (c *Chain) now() int64 {
	return c.nowFn()
}

// Execute runs fn as one transaction. Any error reverts every state write
// fn performed and drops the events it emitted.
func (c *Chain) Execute(ctx context.Context, op string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChainClosed
	}

	_, span := c.tracer.Start(ctx, "core."+op, trace.WithAttributes(
		attribute.String("chain", c.name),
	))
	defer span.End()

	start := time.Now()
	snapshot := c.state.Snapshot()
	err := fn()
	c.metrics.ObserveTransaction(c.name, op, err, time.Since(start))
	if err != nil {
		c.state.Revert(snapshot)
		c.buffer.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("transaction reverted", slog.String("op", op), slog.Any("error", err))
		return err
	}

	published := c.buffer.Flush(c.sink)
	for _, evt := range published {
		c.observe(evt)
	}
	span.SetAttributes(attribute.Int("events", len(published)))
	c.logger.Debug("transaction applied",
		slog.String("op", op),
		slog.Int("events", len(published)),
		slog.String("root", c.state.Root().Hex()))
	return nil
}

// View runs fn under the chain lock without snapshotting. fn must not write.
func (c *Chain) View(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChainClosed
	}
	return fn()
}

func (c *Chain) observe(evt events.Event) {
	c.metrics.RecordEvent(c.name, evt.EventType())
	if r, ok := evt.(events.Renderable); ok && c.logger.Enabled(context.Background(), slog.LevelDebug) {
		rendered := r.Event()
		c.logger.Debug("event", slog.String("type", rendered.Type), slog.Any("attributes", rendered.Attributes))
	}
	switch e := evt.(type) {
	case events.Transfer:
		observability.Events().RecordTransfer(e.Asset)
	case events.SubscriptionPurchased:
		observability.Events().RecordPurchase("token")
	case events.BadgeRedeemed:
		observability.Events().RecordPurchase("badge")
	case events.VoucherRedeemed:
		observability.Events().RecordPurchase("voucher")
	case events.SyncMessageSent:
		observability.Events().RecordSync("sent")
	case events.ReceiverMessageReceived:
		observability.Events().RecordSync("received")
	}
}

// Root returns the uncommitted state root.
func (c *Chain) Root() common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Root()
}

// Commit persists the state and records it as the chain head.
func (c *Chain) Commit() (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return common.Hash{}, ErrChainClosed
	}
	root, err := c.state.Commit()
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.db.Put(headKey(c.name), root.Bytes()); err != nil {
		return common.Hash{}, err
	}
	c.metrics.RecordCommit(c.name)
	c.logger.Info("state committed", slog.String("root", root.Hex()))
	return root, nil
}

// Close stops accepting transactions. The database is owned by the caller.
func (c *Chain) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
