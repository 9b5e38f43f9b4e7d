package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"transferScope/internal/config"
	"transferScope/internal/pricing"
	"transferScope/internal/storage"
	"transferScope/internal/storage/postgres"
)

// runPrices resolves the tasks queued by a deferred-mode scan and writes
// the results through every enabled sink.
func runPrices(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PlatformID == "" {
		return fmt.Errorf("platform-id is required")
	}

	sinkMode, err := config.ParseSinkMode(cfg.Sink)
	if err != nil {
		return err
	}
	if sinkMode.WantsDB() && cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required for sink mode %q", cfg.Sink)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tasks always live in the CSV queue, even when only the DB sink
	// receives the resolved prices.
	csvSink, err := storage.NewCSVSink(cfg.OutDir)
	if err != nil {
		return fmt.Errorf("open csv sink: %w", err)
	}
	tasks, err := csvSink.ReadPriceTasks()
	if err != nil {
		return fmt.Errorf("read price tasks: %w", err)
	}
	if len(tasks) == 0 {
		logger.Info("no queued price tasks")
		return nil
	}

	var sinks storage.MultiSink
	if sinkMode.WantsCSV() {
		sinks = append(sinks, csvSink)
	}
	if sinkMode.WantsDB() {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	gecko := pricing.NewCoinGeckoClient(cfg.CoinListCache, cfg.RequestTimeout, logger)
	resolver := pricing.NewResolver(gecko, cfg.PlatformID, pricing.ModeInline, logger)
	if err := resolver.BuildIDMap(ctx); err != nil {
		return fmt.Errorf("build provider id map: %w", err)
	}

	logger.Info("resolving queued prices", zap.Int("tasks", len(tasks)))
	return pricing.NewWorker(resolver, sinks, logger).Run(ctx, tasks)
}
