// Package network provides the in-process message relay that carries sync
// messages from the primary chain to secondary chains. Delivery is
// asynchronous and may be reordered or dropped; receivers must not rely on
// queue order.
package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	defaultDeliveryInterval = 2 * time.Second
	defaultMaxAttempts      = 3
)

var (
	ErrUnsupportedChain = errors.New("network relay: unsupported target chain")
	ErrFeeTooLow        = errors.New("network relay: fee below quote")
	ErrUnknownEnvelope  = errors.New("network relay: unknown envelope")
)

// FeeSchedule prices delivery to one chain as BaseFee + GasLimit*GasPrice.
type FeeSchedule struct {
	BaseFee  *big.Int
	GasPrice *big.Int
}

func (f FeeSchedule) quote(gasLimit uint64) *big.Int {
	fee := new(big.Int)
	if f.GasPrice != nil {
		fee.Mul(f.GasPrice, new(big.Int).SetUint64(gasLimit))
	}
	if f.BaseFee != nil {
		fee.Add(fee, f.BaseFee)
	}
	return fee
}

// Envelope is one relayed message.
type Envelope struct {
	Sequence      uint64
	SourceChain   uint16
	SourceAddress [32]byte
	TargetChain   uint16
	TargetAddress [32]byte
	Payload       []byte
	GasLimit      uint64
	Fee           *big.Int
	DeliveryHash  common.Hash
	Attempts      int
	LastError     string
}

func (e *Envelope) clone() *Envelope {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	if e.Fee != nil {
		c.Fee = new(big.Int).Set(e.Fee)
	}
	return &c
}

// DeliverFunc hands an envelope to the destination chain. caller is the
// relay identity the destination authenticates.
type DeliverFunc func(ctx context.Context, caller [20]byte, env *Envelope) error

// Relay queues messages per sequence number and delivers them to handlers
// registered per target chain.
type Relay struct {
	mu          sync.Mutex
	chainID     uint16
	address     [20]byte
	collector   [20]byte
	schedules   map[uint16]FeeSchedule
	handlers    map[uint16]DeliverFunc
	pending     map[uint64]*Envelope
	failed      []*Envelope
	sequence    uint64
	maxAttempts int
	metrics     *relayMetrics
}

// NewRelay constructs a relay for messages originating on chainID. address
// is the identity presented to destinations and collector receives fees.
func NewRelay(chainID uint16, address, collector [20]byte) *Relay {
	return &Relay{
		chainID:     chainID,
		address:     address,
		collector:   collector,
		schedules:   make(map[uint16]FeeSchedule),
		handlers:    make(map[uint16]DeliverFunc),
		pending:     make(map[uint64]*Envelope),
		maxAttempts: defaultMaxAttempts,
		metrics:     defaultRelayMetrics(),
	}
}

// Address returns the relay identity.
func (r *Relay) Address() [20]byte { return r.address }

// FeeCollector returns the account credited with delivery fees.
func (r *Relay) FeeCollector() [20]byte { return r.collector }

// SetMaxAttempts bounds delivery retries before an envelope is parked as
// failed.
func (r *Relay) SetMaxAttempts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		n = defaultMaxAttempts
	}
	r.maxAttempts = n
}

// SetFeeSchedule configures pricing for targetChain.
func (r *Relay) SetFeeSchedule(targetChain uint16, schedule FeeSchedule) {
	r.mu.Lock()
	r.schedules[targetChain] = schedule
	r.mu.Unlock()
}

// Register attaches the handler delivering to targetChain.
func (r *Relay) Register(targetChain uint16, deliver DeliverFunc) {
	r.mu.Lock()
	r.handlers[targetChain] = deliver
	r.mu.Unlock()
}

// Quote returns the fee for delivering to targetChain with gasLimit.
func (r *Relay) Quote(targetChain uint16, gasLimit uint64) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule, ok := r.schedules[targetChain]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, targetChain)
	}
	return schedule.quote(gasLimit), nil
}

// Send enqueues payload for targetChain and returns its sequence number.
func (r *Relay) Send(sender [20]byte, targetChain uint16, targetAddress [32]byte, payload []byte, gasLimit uint64, fee *big.Int) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule, ok := r.schedules[targetChain]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedChain, targetChain)
	}
	if fee == nil || fee.Cmp(schedule.quote(gasLimit)) < 0 {
		return 0, ErrFeeTooLow
	}
	r.sequence++
	env := &Envelope{
		Sequence:      r.sequence,
		SourceChain:   r.chainID,
		SourceAddress: common.BytesToHash(sender[:]),
		TargetChain:   targetChain,
		TargetAddress: targetAddress,
		Payload:       append([]byte(nil), payload...),
		GasLimit:      gasLimit,
		Fee:           new(big.Int).Set(fee),
	}
	env.DeliveryHash = deliveryHash(env)
	r.pending[env.Sequence] = env
	r.metrics.enqueued.Inc()
	r.metrics.occupancy.Set(float64(len(r.pending)))
	return env.Sequence, nil
}

func deliveryHash(env *Envelope) common.Hash {
	var header [2 + 8 + 2]byte
	binary.BigEndian.PutUint16(header[0:2], env.SourceChain)
	binary.BigEndian.PutUint64(header[2:10], env.Sequence)
	binary.BigEndian.PutUint16(header[10:12], env.TargetChain)
	return crypto.Keccak256Hash(
		header[:],
		env.SourceAddress[:],
		env.TargetAddress[:],
		crypto.Keccak256(env.Payload),
	)
}

// Pending returns copies of the queued envelopes ordered by sequence.
func (r *Relay) Pending() []*Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Envelope, 0, len(r.pending))
	for _, env := range r.pending {
		out = append(out, env.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Failed returns copies of the envelopes that exhausted their attempts.
func (r *Relay) Failed() []*Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Envelope, len(r.failed))
	for i, env := range r.failed {
		out[i] = env.clone()
	}
	return out
}

// Drop discards a queued envelope without delivering it.
func (r *Relay) Drop(sequence uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[sequence]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEnvelope, sequence)
	}
	delete(r.pending, sequence)
	r.metrics.dropped.Inc()
	r.metrics.occupancy.Set(float64(len(r.pending)))
	return nil
}

// Deliver hands one envelope to its destination. Envelopes are delivered
// in whatever order the caller chooses. A failed delivery stays queued
// until it exhausts its attempts.
func (r *Relay) Deliver(ctx context.Context, sequence uint64) error {
	r.mu.Lock()
	env, ok := r.pending[sequence]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownEnvelope, sequence)
	}
	handler := r.handlers[env.TargetChain]
	snapshot := env.clone()
	r.mu.Unlock()

	if handler == nil {
		return fmt.Errorf("%w: no handler for %d", ErrUnsupportedChain, snapshot.TargetChain)
	}
	err := handler(ctx, r.address, snapshot)

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.pending[sequence]
	if !ok {
		return err
	}
	if err == nil {
		delete(r.pending, sequence)
		r.metrics.delivered.Inc()
		r.metrics.occupancy.Set(float64(len(r.pending)))
		return nil
	}
	current.Attempts++
	current.LastError = err.Error()
	if current.Attempts >= r.maxAttempts {
		delete(r.pending, sequence)
		r.failed = append(r.failed, current)
		r.metrics.failed.Inc()
		r.metrics.occupancy.Set(float64(len(r.pending)))
	}
	return err
}

// DeliverAll attempts every queued envelope once, in sequence order, and
// returns how many were delivered along with the joined delivery errors.
func (r *Relay) DeliverAll(ctx context.Context) (int, error) {
	var (
		delivered int
		errs      []error
	)
	for _, env := range r.Pending() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Deliver(ctx, env.Sequence); err != nil {
			errs = append(errs, fmt.Errorf("sequence %d: %w", env.Sequence, err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Run delivers queued envelopes at a fixed cadence until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = defaultDeliveryInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered, err := r.DeliverAll(ctx)
			if delivered > 0 {
				logger.Info("relay delivered envelopes", slog.Int("count", delivered))
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("relay delivery failed", slog.Any("error", err))
			}
		}
	}
}
