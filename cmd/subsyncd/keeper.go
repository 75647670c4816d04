package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"subsync/core"
	"subsync/storage/smt"
)

// syncKeeper pushes the primary root to every hosted secondary whenever it
// moved since the last push. Relay fees are paid from the operator account.
type syncKeeper struct {
	primary  *core.Primary
	operator [20]byte
	chains   []uint16
	pushed   map[uint16]common.Hash
	logger   *slog.Logger
}

func newSyncKeeper(primary *core.Primary, operator [20]byte, chains []uint16, logger *slog.Logger) *syncKeeper {
	return &syncKeeper{
		primary:  primary,
		operator: operator,
		chains:   chains,
		pushed:   make(map[uint16]common.Hash, len(chains)),
		logger:   logger.With(slog.String("component", "sync-keeper")),
	}
}

// tick syncs every chain whose last pushed root differs from the current
// one and returns how many messages were sent. A failing chain does not
// stop the others.
func (k *syncKeeper) tick(ctx context.Context) (int, error) {
	root, err := k.primary.SyncRoot()
	if err != nil {
		return 0, err
	}
	if root == smt.EmptyRoot {
		return 0, nil
	}
	var (
		sent int
		errs []error
	)
	for _, chain := range k.chains {
		if last, ok := k.pushed[chain]; ok && last == root {
			continue
		}
		fee, err := k.primary.QuoteSync(chain)
		if err != nil {
			errs = append(errs, fmt.Errorf("quote chain %d: %w", chain, err))
			continue
		}
		receipt, err := k.primary.Sync(ctx, k.operator, chain, fee)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync chain %d: %w", chain, err))
			continue
		}
		k.pushed[chain] = receipt.Root
		sent++
		k.logger.Info("root pushed",
			slog.Int("chain", int(chain)),
			slog.String("root", receipt.Root.Hex()),
			slog.String("fee", receipt.Fee.String()),
			slog.Uint64("sequence", receipt.Sequence))
	}
	return sent, errors.Join(errs...)
}

// run ticks at interval until ctx is cancelled.
func (k *syncKeeper) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := k.tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				k.logger.Warn("root push failed", slog.Any("error", err))
			}
		}
	}
}
