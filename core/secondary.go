package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"subsync/core/state"
	"subsync/native/mirror"
	"subsync/native/receiver"
	"subsync/native/subscription"
	"subsync/network"
	"subsync/storage"
	"subsync/storage/smt"
)

// DefaultHistoryCapacity bounds the known-root history of a secondary chain.
const DefaultHistoryCapacity = 256

// SecondaryConfig parameterizes one mirroring chain.
type SecondaryConfig struct {
	ChainID         uint16
	Owner           [20]byte
	TreeDepth       int
	HistoryCapacity int
	Relay           [20]byte
	SourceChain     uint16
	SourceAddress   [32]byte
	AllowMigrate    bool
}

func (c *SecondaryConfig) applyDefaults() {
	if c.TreeDepth <= 0 {
		c.TreeDepth = DefaultTreeDepth
	}
	if c.HistoryCapacity < 0 {
		c.HistoryCapacity = 0
	}
}

// Secondary accepts roots from the primary chain and adopts proven
// windows into its mirror.
type Secondary struct {
	*Chain
	cfg SecondaryConfig

	Receiver *receiver.Engine
	Mirror   *mirror.Engine
}

// NewSecondary opens the secondary chain over db and wires its modules.
func NewSecondary(db storage.Database, cfg SecondaryConfig, logger *slog.Logger) (*Secondary, error) {
	cfg.applyDefaults()
	chain, err := openChain(fmt.Sprintf("secondary-%d", cfg.ChainID), db, logger)
	if err != nil {
		return nil, err
	}
	s := &Secondary{
		Chain:    chain,
		cfg:      cfg,
		Receiver: receiver.NewEngine(),
		Mirror:   mirror.NewEngine(),
	}
	st := s.state
	s.Receiver.SetState(st)
	s.Receiver.SetEmitter(s.buffer)
	s.Receiver.SetOwner(cfg.Owner)
	s.Receiver.SetHistoryCapacity(cfg.HistoryCapacity)

	s.Mirror.SetState(st)
	s.Mirror.SetRootHistory(s.Receiver)
	s.Mirror.SetMaxDepth(cfg.TreeDepth)
	s.Mirror.SetEmitter(s.buffer)
	s.Mirror.SetNowFunc(func() int64 { return s.now() })
	s.Mirror.SetOwner(cfg.Owner)
	return s, nil
}

// Config returns the effective configuration.
func (s *Secondary) Config() SecondaryConfig { return s.cfg }

// Bootstrap stamps the state version and applies the configured relay and
// source when they differ from what is stored.
func (s *Secondary) Bootstrap(ctx context.Context) error {
	return s.Execute(ctx, "bootstrap", func() error {
		if err := state.EnsureStateVersion(s.state, s.cfg.AllowMigrate); err != nil {
			return err
		}
		current, err := s.Receiver.Config()
		if err != nil {
			return err
		}
		if s.cfg.Relay != ([20]byte{}) && current.Relay != s.cfg.Relay {
			if err := s.Receiver.SetRelay(s.cfg.Owner, s.cfg.Relay); err != nil {
				return err
			}
		}
		if s.cfg.SourceChain != 0 && (current.SourceChain != s.cfg.SourceChain || current.SourceAddress != s.cfg.SourceAddress) {
			if err := s.Receiver.SetSource(s.cfg.Owner, s.cfg.SourceChain, s.cfg.SourceAddress); err != nil {
				return err
			}
		}
		return nil
	})
}

// Deliver hands a relayed envelope to the receiver. It satisfies
// network.DeliverFunc.
func (s *Secondary) Deliver(ctx context.Context, caller [20]byte, env *network.Envelope) error {
	if env == nil {
		return fmt.Errorf("core: nil envelope")
	}
	return s.Execute(ctx, "receive_message", func() error {
		return s.Receiver.ReceiveMessage(caller, env.Payload, nil, env.SourceAddress, env.SourceChain, env.DeliveryHash)
	})
}

var _ network.DeliverFunc = (*Secondary)(nil).Deliver

// SyncSubscription adopts window for account when proof ties it to a known
// root.
func (s *Secondary) SyncSubscription(ctx context.Context, account [20]byte, window subscription.Window, proof *smt.Proof) error {
	return s.Execute(ctx, "sync_subscription", func() error {
		return s.Mirror.SyncSubscription(account, window, proof)
	})
}

// Pause halts mirror updates.
func (s *Secondary) Pause(ctx context.Context, caller [20]byte) error {
	return s.Execute(ctx, "pause", func() error { return s.Mirror.Pause(caller) })
}

// Unpause resumes mirror updates.
func (s *Secondary) Unpause(ctx context.Context, caller [20]byte) error {
	return s.Execute(ctx, "unpause", func() error { return s.Mirror.Unpause(caller) })
}

// SubscriptionStatus reads the mirrored window of account.
func (s *Secondary) SubscriptionStatus(account [20]byte) (*Status, error) {
	var status Status
	err := s.View(func() error {
		return readStatus(s.Mirror, account, &status)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Checkpoint is the latest accepted root of a secondary chain.
type Checkpoint struct {
	Root      common.Hash
	Timestamp *big.Int
	Known     bool
}

// LatestRoot returns the most recently accepted root.
func (s *Secondary) LatestRoot() (*Checkpoint, error) {
	var cp Checkpoint
	err := s.View(func() error {
		root, ok, err := s.Receiver.LatestRoot()
		if err != nil {
			return err
		}
		ts, err := s.Receiver.LastSyncTimestamp()
		if err != nil {
			return err
		}
		cp = Checkpoint{Root: root, Timestamp: ts, Known: ok}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}
