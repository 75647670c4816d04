package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subsync/config"
	"subsync/observability/logging"
	telemetry "subsync/observability/otel"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (.toml, .yaml or .yml)")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		slog.Error("subsyncd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath, genesisOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if genesisOverride != "" {
		cfg.Node.GenesisFile = genesisOverride
	}

	logger, logCloser := logging.New(logging.Options{
		Service:    "subsyncd",
		Env:        cfg.Node.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Node.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	operator, err := cfg.OperatorKey()
	if err != nil {
		return fmt.Errorf("unlock operator key: %w", err)
	}
	owner := operator.PubKey().Address().Raw()
	logger.Info("operator unlocked", slog.String("address", operator.PubKey().Address().String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := assemble(ctx, cfg, owner, logger)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Run(ctx)
}
