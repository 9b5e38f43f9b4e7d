package storage

import (
	"context"

	"transferScope/internal/model"
)

// Sink persists enriched records. Implementations must be duplicate-safe
// for transfers and swaps: replaying a block is a no-op, not an error.
type Sink interface {
	WriteTransfers(ctx context.Context, blockNumber uint64, records []model.TransferRecord) error
	WriteSwaps(ctx context.Context, blockNumber uint64, records []model.SwapRecord) error
	WriteTokens(ctx context.Context, tokens []model.TokenMeta) error
	WritePrices(ctx context.Context, records []model.PriceRecord) error
}

// TaskQueue persists deferred price tasks for the out-of-band worker.
type TaskQueue interface {
	WritePriceTasks(ctx context.Context, tasks []model.PriceTask) error
}

// CursorStore persists the last fully processed block per chain.
type CursorStore interface {
	Load(ctx context.Context, chain string) (uint64, bool, error)
	Save(ctx context.Context, chain string, blockNumber uint64) error
}

// MultiSink fans each write out to every enabled backend.
type MultiSink []Sink

func (m MultiSink) WriteTransfers(ctx context.Context, blockNumber uint64, records []model.TransferRecord) error {
	for _, sink := range m {
		if err := sink.WriteTransfers(ctx, blockNumber, records); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteSwaps(ctx context.Context, blockNumber uint64, records []model.SwapRecord) error {
	for _, sink := range m {
		if err := sink.WriteSwaps(ctx, blockNumber, records); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WriteTokens(ctx context.Context, tokens []model.TokenMeta) error {
	for _, sink := range m {
		if err := sink.WriteTokens(ctx, tokens); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) WritePrices(ctx context.Context, records []model.PriceRecord) error {
	for _, sink := range m {
		if err := sink.WritePrices(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
