package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"subsync/config"
	"subsync/core"
	"subsync/core/genesis"
	"subsync/network"
	"subsync/rpc"
	"subsync/storage"
)

// receiverAddress is the account every secondary chain exposes its receiver
// under; the primary routes sync messages for a chain to it.
var receiverAddress = common.BytesToHash(func() []byte {
	addr := core.ModuleAddress("receiver")
	return addr[:]
}())

type secondaryNode struct {
	chain *core.Secondary
	db    *storage.LevelDB
}

// daemon owns every chain hosted by this process together with the relay
// between them and the RPC server in front of them.
type daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	primary     *core.Primary
	primaryDB   *storage.LevelDB
	secondaries []secondaryNode
	relay       *network.Relay
	keeper      *syncKeeper
	rpc         *rpc.Server
}

func assemble(ctx context.Context, cfg *config.Config, owner [20]byte, logger *slog.Logger) (_ *daemon, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &daemon{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	relayAddr, err := cfg.RelayAddress()
	if err != nil {
		return nil, err
	}
	collector, err := cfg.FeeCollector()
	if err != nil {
		return nil, err
	}

	if d.primaryDB, err = storage.NewLevelDB(filepath.Join(cfg.Node.DataDir, "primary")); err != nil {
		return nil, fmt.Errorf("open primary store: %w", err)
	}
	d.primary, err = core.NewPrimary(d.primaryDB, core.PrimaryConfig{
		ChainID:        cfg.Primary.ChainID,
		Owner:          owner,
		NativeToken:    cfg.Primary.NativeToken,
		NativeName:     cfg.Primary.NativeName,
		BasePeriod:     cfg.Primary.BasePeriodSeconds,
		TreeDepth:      cfg.Primary.TreeDepth,
		VoucherName:    cfg.Primary.VoucherName,
		VoucherVersion: cfg.Primary.VoucherVersion,
		AllowMigrate:   cfg.Node.AllowMigrate,
	}, logger)
	if err != nil {
		return nil, err
	}
	fresh := d.primary.Fresh()
	if err := d.primary.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap primary: %w", err)
	}
	if fresh && cfg.Node.GenesisFile != "" {
		spec, err := genesis.Load(cfg.Node.GenesisFile)
		if err != nil {
			return nil, err
		}
		if err := genesis.Apply(ctx, d.primary, spec); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied", slog.String("file", cfg.Node.GenesisFile))
	}

	d.relay = network.NewRelay(cfg.Primary.ChainID, relayAddr, collector)
	d.relay.SetMaxAttempts(cfg.Relay.MaxAttempts)
	for _, q := range cfg.Relay.Quotes {
		baseFee, err := config.ParseAmount(q.BaseFee)
		if err != nil {
			return nil, fmt.Errorf("relay quote %d: base fee: %w", q.ChainID, err)
		}
		gasPrice, err := config.ParseAmount(q.GasPrice)
		if err != nil {
			return nil, fmt.Errorf("relay quote %d: gas price: %w", q.ChainID, err)
		}
		d.relay.SetFeeSchedule(q.ChainID, network.FeeSchedule{BaseFee: baseFee, GasPrice: gasPrice})
	}
	d.primary.SetRelay(d.relay)

	mirrors := make(map[uint16]rpc.MirrorBackend, len(cfg.Secondaries))
	chains := make([]uint16, 0, len(cfg.Secondaries))
	for _, sc := range cfg.Secondaries {
		db, err := storage.NewLevelDB(filepath.Join(cfg.Node.DataDir, fmt.Sprintf("secondary-%d", sc.ChainID)))
		if err != nil {
			return nil, fmt.Errorf("open secondary %d store: %w", sc.ChainID, err)
		}
		sec, err := core.NewSecondary(db, core.SecondaryConfig{
			ChainID:         sc.ChainID,
			Owner:           owner,
			TreeDepth:       cfg.Primary.TreeDepth,
			HistoryCapacity: sc.HistoryCapacity,
			Relay:           relayAddr,
			SourceChain:     cfg.Primary.ChainID,
			SourceAddress:   d.primary.Synchronizer.PaddedAddress(),
			AllowMigrate:    cfg.Node.AllowMigrate,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		d.secondaries = append(d.secondaries, secondaryNode{chain: sec, db: db})
		if err := sec.Bootstrap(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap secondary %d: %w", sc.ChainID, err)
		}
		d.relay.Register(sc.ChainID, sec.Deliver)
		mirrors[sc.ChainID] = sec
		chains = append(chains, sc.ChainID)
	}
	d.keeper = newSyncKeeper(d.primary, owner, chains, logger)
	if err := d.ensureDestinations(ctx, owner); err != nil {
		return nil, err
	}
	if err := d.commit(); err != nil {
		return nil, err
	}

	d.rpc = rpc.NewServer(rpc.Config{
		Address:      cfg.RPC.Address,
		ReadTimeout:  time.Duration(cfg.RPC.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.RPC.WriteTimeoutSeconds) * time.Second,
		RateLimit:    cfg.RPC.RateLimit,
		Burst:        cfg.RPC.Burst,
	}, cfg.Primary.ChainID, d.primary, mirrors, logger)
	return d, nil
}

// ensureDestinations registers every hosted secondary with the synchronizer
// unless genesis already did.
func (d *daemon) ensureDestinations(ctx context.Context, owner [20]byte) error {
	return d.primary.Admin(ctx, "destinations", func() error {
		for _, sec := range d.secondaries {
			id := sec.chain.Config().ChainID
			if _, ok, err := d.primary.Synchronizer.Destination(id); err != nil {
				return err
			} else if ok {
				continue
			}
			if err := d.primary.Synchronizer.AddDestination(owner, id, receiverAddress); err != nil {
				return fmt.Errorf("destination %d: %w", id, err)
			}
		}
		return nil
	})
}

func (d *daemon) commit() error {
	var errs []error
	if _, err := d.primary.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("commit primary: %w", err))
	}
	for _, sec := range d.secondaries {
		if _, err := sec.chain.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", sec.chain.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Run drives the relay, the sync keeper, the periodic commit and the RPC
// server until ctx is cancelled, then commits one last time.
func (d *daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.relay.Run(gctx, time.Duration(d.cfg.Relay.DeliveryIntervalMillis)*time.Millisecond, d.logger)
		return nil
	})
	if secs := d.cfg.Relay.SyncIntervalSeconds; secs > 0 {
		g.Go(func() error {
			d.keeper.run(gctx, time.Duration(secs)*time.Second)
			return nil
		})
	}
	g.Go(func() error {
		interval := time.Duration(d.cfg.Node.CommitIntervalSeconds) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := d.commit(); err != nil {
					d.logger.Error("periodic commit failed", slog.Any("error", err))
				}
			}
		}
	})
	g.Go(func() error {
		return d.rpc.Start(gctx)
	})
	runErr := g.Wait()
	if err := d.commit(); err != nil {
		return errors.Join(runErr, err)
	}
	d.logger.Info("subsyncd stopped")
	return runErr
}

// Close stops the chains and releases their stores.
func (d *daemon) Close() {
	if d.primary != nil {
		d.primary.Close()
	}
	if d.primaryDB != nil {
		d.primaryDB.Close()
		d.primaryDB = nil
	}
	for _, sec := range d.secondaries {
		sec.chain.Close()
		sec.db.Close()
	}
	d.secondaries = nil
}
