package scanner

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"transferScope/internal/dex"
	"transferScope/internal/model"
	"transferScope/internal/pricing"
)

// TokenMetaResolver resolves cached ERC20 metadata; nil means the
// address is not a standard token.
type TokenMetaResolver interface {
	Resolve(ctx context.Context, addr common.Address) *model.TokenMeta
}

// PoolTokensResolver resolves a pool's cached token pair.
type PoolTokensResolver interface {
	Resolve(ctx context.Context, pool common.Address) *model.PoolTokens
}

// PriceResolver resolves (or defers) a token's USD price for a day.
type PriceResolver interface {
	PriceFor(ctx context.Context, token common.Address, date string) (*decimal.Decimal, error)
	DrainTasks() []model.PriceTask
}

// FailureCounters tracks per-log enrichment failures by category; none
// of them aborts the surrounding block.
type FailureCounters struct {
	ShortData      int
	PoolResolution int
	Metadata       int
	Price          int
	Unexpected     int
}

// Add accumulates another counter set.
func (c *FailureCounters) Add(other FailureCounters) {
	c.ShortData += other.ShortData
	c.PoolResolution += other.PoolResolution
	c.Metadata += other.Metadata
	c.Price += other.Price
	c.Unexpected += other.Unexpected
}

// BlockResult is the enriched output of one block.
type BlockResult struct {
	Transfers []model.TransferRecord
	Swaps     []model.SwapRecord

	// NewTokens is metadata first resolved during this block, for the
	// cumulative registry.
	NewTokens []model.TokenMeta

	Failures FailureCounters
}

// Enricher turns classified raw events into persisted record shapes,
// attaching token metadata and USD values.
type Enricher struct {
	chain  string
	tokens TokenMetaResolver
	pools  PoolTokensResolver
	prices PriceResolver
	logger *zap.Logger

	seenTokens map[string]struct{}
}

// NewEnricher builds an Enricher for one chain.
func NewEnricher(chain string, tokens TokenMetaResolver, pools PoolTokensResolver, prices PriceResolver, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		chain:      chain,
		tokens:     tokens,
		pools:      pools,
		prices:     prices,
		logger:     logger,
		seenTokens: make(map[string]struct{}),
	}
}

// EnrichBlock enriches every decoded event of a block, preserving the
// receipt/log order of the decoder output.
func (e *Enricher) EnrichBlock(ctx context.Context, block *model.Block, events dex.BlockEvents) BlockResult {
	result := BlockResult{Failures: FailureCounters{ShortData: events.ShortData}}
	date := pricing.DayFromUnix(block.Timestamp)

	for _, raw := range events.Transfers {
		rec, ok := e.enrichTransfer(ctx, block, raw, date, &result)
		if ok {
			result.Transfers = append(result.Transfers, rec)
		}
	}
	for _, raw := range events.Swaps {
		rec, ok := e.enrichSwap(ctx, block, raw, date, &result)
		if ok {
			result.Swaps = append(result.Swaps, rec)
		}
	}
	return result
}

func (e *Enricher) enrichTransfer(ctx context.Context, block *model.Block, raw model.RawTransfer, date string, result *BlockResult) (model.TransferRecord, bool) {
	meta := e.resolveToken(ctx, raw.Token, result)
	if meta == nil {
		result.Failures.Metadata++
		return model.TransferRecord{}, false
	}

	value := decimal.NewFromBigInt(raw.RawValue, -int32(meta.Decimals))
	usd := e.usdValue(ctx, raw.Token, date, value, result)

	rec, err := model.NewTransferRecord(model.TransferRecord{
		BlockNumber:   block.Number,
		Timestamp:     block.Timestamp,
		Chain:         e.chain,
		TxHash:        raw.TxHash.Hex(),
		LogIndex:      raw.LogIndex,
		TokenContract: meta.Address,
		TokenSymbol:   meta.Symbol,
		FromAddress:   raw.From.Hex(),
		ToAddress:     raw.To.Hex(),
		Value:         value,
		USDValue:      usd,
	})
	if err != nil {
		result.Failures.Unexpected++
		e.logger.Warn("transfer record rejected", zap.String("tx", raw.TxHash.Hex()), zap.Error(err))
		return model.TransferRecord{}, false
	}
	return rec, true
}

func (e *Enricher) enrichSwap(ctx context.Context, block *model.Block, raw model.RawSwap, date string, result *BlockResult) (model.SwapRecord, bool) {
	poolTokens := e.pools.Resolve(ctx, raw.Pool)
	if poolTokens == nil {
		result.Failures.PoolResolution++
		return model.SwapRecord{}, false
	}

	inAddr := common.HexToAddress(poolTokens.Token0)
	outAddr := common.HexToAddress(poolTokens.Token1)
	if raw.TokenInIndex == 1 {
		inAddr, outAddr = outAddr, inAddr
	}

	metaIn := e.resolveToken(ctx, inAddr, result)
	metaOut := e.resolveToken(ctx, outAddr, result)
	if metaIn == nil || metaOut == nil {
		result.Failures.Metadata++
		return model.SwapRecord{}, false
	}

	amountIn := decimal.NewFromBigInt(raw.AmountIn, -int32(metaIn.Decimals))
	amountOut := decimal.NewFromBigInt(raw.AmountOut, -int32(metaOut.Decimals))

	rec, err := model.NewSwapRecord(model.SwapRecord{
		BlockNumber:  block.Number,
		Timestamp:    block.Timestamp,
		Chain:        e.chain,
		TxHash:       raw.TxHash.Hex(),
		LogIndex:     raw.LogIndex,
		PoolContract: poolTokens.Pool,
		TokenIn: model.SwapLeg{
			Contract: metaIn.Address,
			Symbol:   metaIn.Symbol,
			Amount:   amountIn,
			USDValue: e.usdValue(ctx, inAddr, date, amountIn, result),
		},
		TokenOut: model.SwapLeg{
			Contract: metaOut.Address,
			Symbol:   metaOut.Symbol,
			Amount:   amountOut,
			USDValue: e.usdValue(ctx, outAddr, date, amountOut, result),
		},
	})
	if err != nil {
		result.Failures.Unexpected++
		e.logger.Warn("swap record rejected", zap.String("tx", raw.TxHash.Hex()), zap.Error(err))
		return model.SwapRecord{}, false
	}
	return rec, true
}

// resolveToken tracks first-seen tokens for the cumulative registry.
func (e *Enricher) resolveToken(ctx context.Context, addr common.Address, result *BlockResult) *model.TokenMeta {
	meta := e.tokens.Resolve(ctx, addr)
	if meta == nil {
		return nil
	}
	if _, ok := e.seenTokens[meta.Address]; !ok {
		e.seenTokens[meta.Address] = struct{}{}
		result.NewTokens = append(result.NewTokens, *meta)
	}
	return meta
}

// usdValue multiplies a normalized amount by the day's price. A failed
// live fetch is counted; the record still persists with a null USD.
func (e *Enricher) usdValue(ctx context.Context, token common.Address, date string, amount decimal.Decimal, result *BlockResult) *decimal.Decimal {
	price, err := e.prices.PriceFor(ctx, token, date)
	if err != nil {
		result.Failures.Price++
		return nil
	}
	if price == nil {
		return nil
	}
	usd := amount.Mul(*price)
	return &usd
}
