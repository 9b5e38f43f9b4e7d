package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"transferScope/internal/chain"
	"transferScope/internal/dex"
	"transferScope/internal/model"
	"transferScope/internal/pricing"
	"transferScope/internal/storage"
)

// BlockFetcher is the chain surface the runner needs; chain.Client
// satisfies it.
type BlockFetcher interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockReceipts(ctx context.Context, number uint64) ([]model.Receipt, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Config carries the per-run scan parameters.
type Config struct {
	Chain         string
	Confirmations uint64
	PricingMode   pricing.Mode
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Summary reports what one Run did.
type Summary struct {
	StartBlock    uint64
	EndBlock      uint64
	BlocksScanned int
	BlocksSkipped int
	Transfers     int
	Swaps         int
	QueuedTasks   int
	Failures      FailureCounters
}

// Runner drives one scan pass: it walks every confirmed block past the
// cursor, decodes and enriches its logs, persists the results and only
// then advances the cursor.
type Runner struct {
	cfg      Config
	fetcher  BlockFetcher
	decoder  *dex.Decoder
	enricher *Enricher
	sink     storage.Sink
	tasks    storage.TaskQueue
	cursor   storage.CursorStore
	logger   *zap.Logger
}

// NewRunner wires a Runner. tasks may be nil when pricing is inline.
func NewRunner(cfg Config, fetcher BlockFetcher, decoder *dex.Decoder, enricher *Enricher, sink storage.Sink, tasks storage.TaskQueue, cursor storage.CursorStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Runner{
		cfg:      cfg,
		fetcher:  fetcher,
		decoder:  decoder,
		enricher: enricher,
		sink:     sink,
		tasks:    tasks,
		cursor:   cursor,
		logger:   logger,
	}
}

// Run performs one scan pass and returns its summary. A block whose
// fetch keeps failing is skipped without advancing the cursor for it;
// a persistence failure aborts the run so nothing past the cursor is
// ever claimed as processed.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	var tip uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, chain.IsRetryable, func(ctx context.Context) error {
		var err error
		tip, err = r.fetcher.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return summary, fmt.Errorf("fetch chain tip: %w", err)
	}
	if tip < r.cfg.Confirmations {
		r.logger.Info("chain shorter than confirmation depth", zap.Uint64("tip", tip))
		return summary, nil
	}
	target := tip - r.cfg.Confirmations

	last, found, err := r.cursor.Load(ctx, r.cfg.Chain)
	if err != nil {
		return summary, fmt.Errorf("load cursor: %w", err)
	}

	// First run starts at the current confirmed tip; there is no
	// historical backfill.
	start := target
	if found {
		start = last + 1
	}
	if start > target {
		r.logger.Info("nothing to sync",
			zap.String("chain", r.cfg.Chain),
			zap.Uint64("cursor", last),
			zap.Uint64("target", target),
		)
		return summary, nil
	}

	summary.StartBlock = start
	summary.EndBlock = target
	r.logger.Info("scanning range",
		zap.String("chain", r.cfg.Chain),
		zap.Uint64("from", start),
		zap.Uint64("to", target),
	)

	for number := start; number <= target; number++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		block, err := r.fetchBlock(ctx, number)
		if err != nil {
			summary.BlocksSkipped++
			r.logger.Warn("skipping block",
				zap.Uint64("block", number),
				zap.Error(err),
			)
			continue
		}

		r.logger.Debug("block fetched",
			zap.Uint64("block", number),
			zap.Int("receipts", len(block.Receipts)),
			zap.Int("logs", block.LogCount()),
		)

		events := r.decoder.DecodeBlock(block.Receipts)
		result := r.enricher.EnrichBlock(ctx, block, events)
		summary.Failures.Add(result.Failures)

		if err := r.persist(ctx, block.Number, result, &summary); err != nil {
			return summary, err
		}
		if err := r.cursor.Save(ctx, r.cfg.Chain, block.Number); err != nil {
			return summary, fmt.Errorf("save cursor at block %d: %w", block.Number, err)
		}

		summary.BlocksScanned++
		summary.Transfers += len(result.Transfers)
		summary.Swaps += len(result.Swaps)
	}

	r.logSummary(summary)
	return summary, nil
}

func (r *Runner) fetchBlock(ctx context.Context, number uint64) (*model.Block, error) {
	var receipts []model.Receipt
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, chain.IsRetryable, func(ctx context.Context) error {
		var err error
		receipts, err = r.fetcher.BlockReceipts(ctx, number)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch receipts for block %d: %w", number, err)
	}

	ts, err := r.fetcher.BlockTimestamp(ctx, number)
	if err != nil {
		// The timestamp only feeds the price date; wall clock is close
		// enough when the header cannot be read.
		r.logger.Warn("block timestamp unavailable, using wall clock",
			zap.Uint64("block", number),
			zap.Error(err),
		)
		ts = uint64(time.Now().Unix())
	}

	return &model.Block{Number: number, Timestamp: ts, Receipts: receipts}, nil
}

// persist writes the block's output to every sink before the cursor may
// advance.
func (r *Runner) persist(ctx context.Context, blockNumber uint64, result BlockResult, summary *Summary) error {
	if err := r.sink.WriteTransfers(ctx, blockNumber, result.Transfers); err != nil {
		return fmt.Errorf("write transfers for block %d: %w", blockNumber, err)
	}
	if err := r.sink.WriteSwaps(ctx, blockNumber, result.Swaps); err != nil {
		return fmt.Errorf("write swaps for block %d: %w", blockNumber, err)
	}
	if len(result.NewTokens) > 0 {
		if err := r.sink.WriteTokens(ctx, result.NewTokens); err != nil {
			return fmt.Errorf("write tokens for block %d: %w", blockNumber, err)
		}
	}

	if r.cfg.PricingMode == pricing.ModeDeferred && r.tasks != nil {
		queued := r.enricher.prices.DrainTasks()
		if len(queued) > 0 {
			if err := r.tasks.WritePriceTasks(ctx, queued); err != nil {
				return fmt.Errorf("write price tasks for block %d: %w", blockNumber, err)
			}
			summary.QueuedTasks += len(queued)
		}
	}
	return nil
}

func (r *Runner) logSummary(s Summary) {
	r.logger.Info("scan complete",
		zap.Uint64("from", s.StartBlock),
		zap.Uint64("to", s.EndBlock),
		zap.Int("blocks", s.BlocksScanned),
		zap.Int("skipped", s.BlocksSkipped),
		zap.Int("transfers", s.Transfers),
		zap.Int("swaps", s.Swaps),
		zap.Int("queuedTasks", s.QueuedTasks),
		zap.Int("shortData", s.Failures.ShortData),
		zap.Int("poolFailures", s.Failures.PoolResolution),
		zap.Int("metadataFailures", s.Failures.Metadata),
		zap.Int("priceFailures", s.Failures.Price),
	)
}
