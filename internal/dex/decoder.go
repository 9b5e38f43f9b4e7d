package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"transferScope/internal/model"
)

const (
	pairSwapDataLen    = 128 // amount0In, amount1In, amount0Out, amount1Out
	feePairSwapDataLen = 192 // amounts plus two fee words
	poolSwapDataLen    = 160 // amount0, amount1, sqrtPriceX96, liquidity, tick
)

// BlockEvents is the classified output of one block's receipts, in
// receipt order and log order within a receipt.
type BlockEvents struct {
	Transfers []model.RawTransfer
	Swaps     []model.RawSwap

	// ShortData counts swap-topic logs whose data was too short to
	// carry the layout's fields.
	ShortData int
}

// Decoder classifies receipt logs by topic0 and decodes the known
// Transfer and Swap wire layouts.
type Decoder struct {
	transferID    common.Hash
	pairSwapID    common.Hash
	feePairSwapID common.Hash
	poolSwapID    common.Hash
	logger        *zap.Logger
}

// NewDecoder builds a Decoder with event IDs derived from the ABIs.
func NewDecoder(logger *zap.Logger) (*Decoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	erc20, err := ERC20EventABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 event abi: %w", err)
	}
	pair, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	feePair, err := FeePairABI()
	if err != nil {
		return nil, fmt.Errorf("parse fee pair abi: %w", err)
	}
	pool, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	return &Decoder{
		transferID:    erc20.Events["Transfer"].ID,
		pairSwapID:    pair.Events["Swap"].ID,
		feePairSwapID: feePair.Events["Swap"].ID,
		poolSwapID:    pool.Events["Swap"].ID,
		logger:        logger,
	}, nil
}

// DecodeBlock scans every log of every receipt and returns the
// classified events. Malformed logs are counted and skipped; they never
// abort the block.
func (d *Decoder) DecodeBlock(receipts []model.Receipt) BlockEvents {
	var events BlockEvents
	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			d.decodeLog(receipt.TxHash, log, &events)
		}
	}
	return events
}

func (d *Decoder) decodeLog(txHash common.Hash, log types.Log, events *BlockEvents) {
	if len(log.Topics) == 0 {
		return
	}

	switch log.Topics[0] {
	case d.transferID:
		if transfer, ok := d.decodeTransfer(txHash, log); ok {
			events.Transfers = append(events.Transfers, transfer)
		}
	case d.pairSwapID:
		d.decodePairSwap(txHash, log, pairSwapDataLen, events)
	case d.feePairSwapID:
		d.decodePairSwap(txHash, log, feePairSwapDataLen, events)
	case d.poolSwapID:
		d.decodePoolSwap(txHash, log, events)
	}
}

// decodeTransfer handles Transfer(address,address,uint256). The two
// address topics are 32-byte left-padded; the address is the last 20
// bytes. Logs with fewer than 3 topics share the signature hash but are
// not ERC20 transfers.
func (d *Decoder) decodeTransfer(txHash common.Hash, log types.Log) (model.RawTransfer, bool) {
	if len(log.Topics) < 3 {
		return model.RawTransfer{}, false
	}

	value := new(big.Int)
	if len(log.Data) > 0 {
		value.SetBytes(log.Data)
	}

	return model.RawTransfer{
		Token:    log.Address,
		From:     common.BytesToAddress(log.Topics[1].Bytes()),
		To:       common.BytesToAddress(log.Topics[2].Bytes()),
		RawValue: value,
		TxHash:   txHash,
		LogIndex: uint64(log.Index),
	}, true
}

// decodePairSwap handles the constant-product layouts. The first four
// data words are amount0In, amount1In, amount0Out, amount1Out in both
// the 4-word and the fee-reporting 6-word layout.
func (d *Decoder) decodePairSwap(txHash common.Hash, log types.Log, minLen int, events *BlockEvents) {
	if len(log.Data) < minLen {
		events.ShortData++
		d.logger.Warn("swap data too short",
			zap.String("pool", log.Address.Hex()),
			zap.String("tx", txHash.Hex()),
			zap.Int("len", len(log.Data)),
		)
		return
	}

	amount0In := word(log.Data, 0)
	amount1In := word(log.Data, 1)
	amount0Out := word(log.Data, 2)
	amount1Out := word(log.Data, 3)

	swap := model.RawSwap{
		Kind:     model.SwapConstantProduct,
		Pool:     log.Address,
		TxHash:   txHash,
		LogIndex: uint64(log.Index),
	}
	if amount0In.Sign() > 0 {
		swap.TokenInIndex = 0
		swap.AmountIn = amount0In
		swap.AmountOut = amount1Out
	} else {
		swap.TokenInIndex = 1
		swap.AmountIn = amount1In
		swap.AmountOut = amount0Out
	}
	events.Swaps = append(events.Swaps, swap)
}

// decodePoolSwap handles the concentrated-liquidity layout: two signed
// words followed by sqrtPriceX96, liquidity and tick. A positive amount
// means the asset flowed into the pool.
func (d *Decoder) decodePoolSwap(txHash common.Hash, log types.Log, events *BlockEvents) {
	if len(log.Data) < poolSwapDataLen {
		events.ShortData++
		d.logger.Warn("swap data too short",
			zap.String("pool", log.Address.Hex()),
			zap.String("tx", txHash.Hex()),
			zap.Int("len", len(log.Data)),
		)
		return
	}

	amount0 := signedWord(log.Data, 0)
	amount1 := signedWord(log.Data, 1)

	swap := model.RawSwap{
		Kind:     model.SwapConcentratedLiquidity,
		Pool:     log.Address,
		TxHash:   txHash,
		LogIndex: uint64(log.Index),
	}
	if amount0.Sign() > 0 {
		swap.TokenInIndex = 0
		swap.AmountIn = amount0
		swap.AmountOut = new(big.Int).Abs(amount1)
	} else {
		swap.TokenInIndex = 1
		swap.AmountIn = new(big.Int).Abs(amount1)
		swap.AmountOut = new(big.Int).Abs(amount0)
	}
	events.Swaps = append(events.Swaps, swap)
}

// word reads the i-th 32-byte word as an unsigned big-endian integer.
func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*32 : (i+1)*32])
}

var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

// signedWord reads the i-th 32-byte word as a two's-complement int256.
func signedWord(data []byte, i int) *big.Int {
	v := word(data, i)
	if v.Bit(255) == 1 {
		v.Sub(v, twoPow256)
	}
	return v
}
