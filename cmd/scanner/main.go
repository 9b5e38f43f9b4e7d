package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"transferScope/internal/chain"
	"transferScope/internal/config"
	"transferScope/internal/dex"
	"transferScope/internal/pricing"
	"transferScope/internal/scanner"
	"transferScope/internal/storage"
	"transferScope/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "scanner",
		Short:        "EVM transfer and swap scanner",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan confirmed blocks past the cursor",
		RunE:  runScan,
	}

	scanCmd.Flags().String("rpc", "", "EVM RPC URL")
	scanCmd.Flags().String("chain", "", "chain name for record tagging")
	scanCmd.Flags().String("platform-id", "", "price provider platform key")
	scanCmd.Flags().String("sink", "both", "sink mode (db, csv, both)")
	scanCmd.Flags().String("pricing", "inline", "pricing mode (inline, deferred)")
	scanCmd.Flags().Uint64("confirmations", 5, "blocks behind the tip to treat as final")
	scanCmd.Flags().String("out-dir", "./data", "CSV output directory")
	scanCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	scanCmd.Flags().String("cursor-file", "./data/cursor.json", "cursor file path (csv-only runs)")
	scanCmd.Flags().String("coin-list-cache", "./data/coin_list.json", "coin listing cache file")
	scanCmd.Flags().Duration("request-timeout", 20*time.Second, "per-call timeout for RPC and price provider requests")
	scanCmd.Flags().Int("max-retries", 3, "maximum RPC retry attempts")
	scanCmd.Flags().Duration("retry-backoff", 1500*time.Millisecond, "retry backoff step")
	scanCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(scanCmd)

	pricesCmd := &cobra.Command{
		Use:   "prices",
		Short: "Resolve queued price tasks",
		RunE:  runPrices,
	}

	pricesCmd.Flags().String("platform-id", "", "price provider platform key")
	pricesCmd.Flags().String("sink", "both", "sink mode (db, csv, both)")
	pricesCmd.Flags().String("out-dir", "./data", "CSV output directory")
	pricesCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	pricesCmd.Flags().String("coin-list-cache", "./data/coin_list.json", "coin listing cache file")
	pricesCmd.Flags().Duration("request-timeout", 20*time.Second, "price provider request timeout")
	pricesCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(pricesCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
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

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Chain == "" {
		return fmt.Errorf("chain name is required")
	}
	if cfg.PlatformID == "" {
		return fmt.Errorf("platform-id is required")
	}

	sinkMode, err := config.ParseSinkMode(cfg.Sink)
	if err != nil {
		return err
	}
	pricingMode, err := pricing.ParseMode(cfg.Pricing)
	if err != nil {
		return err
	}
	if sinkMode.WantsDB() && cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required for sink mode %q", cfg.Sink)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	// Checks the endpoint before any sink is opened; a bad URL fails
	// here instead of mid-scan.
	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}

	var sinks storage.MultiSink
	var csvSink *storage.CSVSink
	var cursor storage.CursorStore

	if sinkMode.WantsCSV() {
		csvSink, err = storage.NewCSVSink(cfg.OutDir)
		if err != nil {
			return fmt.Errorf("open csv sink: %w", err)
		}
		sinks = append(sinks, csvSink)
		cursor = storage.NewFileCursorStore(cfg.CursorFile)
	}
	if sinkMode.WantsDB() {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
		// The database cursor wins whenever the DB sink is enabled.
		cursor = store
	}

	gecko := pricing.NewCoinGeckoClient(cfg.CoinListCache, cfg.RequestTimeout, logger)
	resolver := pricing.NewResolver(gecko, cfg.PlatformID, pricingMode, logger)
	if resolver.Mode() == pricing.ModeInline {
		// Deferred runs only queue tasks; the worker maps tokens when
		// it resolves them, so the scan skips the listing fetch.
		if err := resolver.BuildIDMap(ctx); err != nil {
			// Records still persist without USD values; pricing degrades
			// rather than blocking the scan.
			logger.Warn("provider id map unavailable, scanning without prices", zap.Error(err))
		}
	}

	decoder, err := dex.NewDecoder(logger)
	if err != nil {
		return err
	}
	tokens := dex.NewTokenResolver(chainClient, logger)
	pools := dex.NewPoolResolver(chainClient, logger)
	enricher := scanner.NewEnricher(cfg.Chain, tokens, pools, resolver, logger)

	var tasks storage.TaskQueue
	if pricingMode == pricing.ModeDeferred {
		if csvSink == nil {
			return fmt.Errorf("deferred pricing requires the csv sink")
		}
		tasks = csvSink
	}

	runner := scanner.NewRunner(scanner.Config{
		Chain:         cfg.Chain,
		Confirmations: cfg.Confirmations,
		PricingMode:   pricingMode,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	}, chainClient, decoder, enricher, sinks, tasks, cursor, logger)

	logger.Info("scanner start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain", cfg.Chain),
		zap.String("chain_id", chainID.String()),
		zap.String("sink", cfg.Sink),
		zap.String("pricing", cfg.Pricing),
		zap.Uint64("confirmations", cfg.Confirmations),
	)

	_, err = runner.Run(ctx)
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
