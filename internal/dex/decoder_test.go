package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"transferScope/internal/model"
)

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func buildReceipt(txHash common.Hash, logs ...types.Log) model.Receipt {
	return model.Receipt{TxHash: txHash, Logs: logs}
}

func TestDecodeTransfer(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	erc20, err := ERC20EventABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	txHash := common.HexToHash("0xaaaa")

	value := big.NewInt(1500000)
	data, err := erc20.Events["Transfer"].Inputs.NonIndexed().Pack(value)
	if err != nil {
		t.Fatalf("pack transfer: %v", err)
	}

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(txHash, types.Log{
			Address: token,
			Topics:  []common.Hash{decoder.transferID, topicFromAddress(from), topicFromAddress(to)},
			Data:    data,
			Index:   4,
		}),
	})

	if len(events.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(events.Transfers))
	}
	transfer := events.Transfers[0]
	if transfer.Token != token || transfer.From != from || transfer.To != to {
		t.Fatalf("address mismatch: %+v", transfer)
	}
	if transfer.RawValue.Cmp(value) != 0 {
		t.Fatalf("value mismatch: %s", transfer.RawValue)
	}
	if transfer.TxHash != txHash || transfer.LogIndex != 4 {
		t.Fatalf("key mismatch: %+v", transfer)
	}
}

func TestDecodeTransferEmptyData(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xbb"), types.Log{
			Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Topics: []common.Hash{
				decoder.transferID,
				topicFromAddress(common.HexToAddress("0x22")),
				topicFromAddress(common.HexToAddress("0x33")),
			},
		}),
	})

	if len(events.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(events.Transfers))
	}
	if events.Transfers[0].RawValue.Sign() != 0 {
		t.Fatalf("expected zero value, got %s", events.Transfers[0].RawValue)
	}
}

func TestDecodeTransferTwoTopicsIgnored(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xcc"), types.Log{
			Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Topics:  []common.Hash{decoder.transferID, topicFromAddress(common.HexToAddress("0x22"))},
		}),
	})

	if len(events.Transfers) != 0 {
		t.Fatalf("non-standard transfer should be skipped, got %d", len(events.Transfers))
	}
	if events.ShortData != 0 {
		t.Fatalf("unexpected short data count: %d", events.ShortData)
	}
}

func TestDecodePairSwapDirection(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	pair, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	pool := common.HexToAddress("0x4444444444444444444444444444444444444444")
	sender := common.HexToAddress("0x5555555555555555555555555555555555555555")

	// token0 flowed in: amount0In=100, amount1Out=250.
	data, err := pair.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(100), big.NewInt(0), big.NewInt(0), big.NewInt(250),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xdd"), types.Log{
			Address: pool,
			Topics:  []common.Hash{decoder.pairSwapID, topicFromAddress(sender), topicFromAddress(sender)},
			Data:    data,
			Index:   1,
		}),
	})

	if len(events.Swaps) != 1 {
		t.Fatalf("expected 1 swap, got %d", len(events.Swaps))
	}
	swap := events.Swaps[0]
	if swap.Kind != model.SwapConstantProduct {
		t.Fatalf("kind mismatch: %v", swap.Kind)
	}
	if swap.TokenInIndex != 0 {
		t.Fatalf("token0 should be the in side, got index %d", swap.TokenInIndex)
	}
	if swap.AmountIn.Int64() != 100 || swap.AmountOut.Int64() != 250 {
		t.Fatalf("amounts mismatch: in=%s out=%s", swap.AmountIn, swap.AmountOut)
	}

	// Reverse direction: amount1In=700, amount0Out=30.
	data, err = pair.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(0), big.NewInt(700), big.NewInt(30), big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	events = decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xee"), types.Log{
			Address: pool,
			Topics:  []common.Hash{decoder.pairSwapID, topicFromAddress(sender), topicFromAddress(sender)},
			Data:    data,
		}),
	})

	swap = events.Swaps[0]
	if swap.TokenInIndex != 1 {
		t.Fatalf("token1 should be the in side, got index %d", swap.TokenInIndex)
	}
	if swap.AmountIn.Int64() != 700 || swap.AmountOut.Int64() != 30 {
		t.Fatalf("amounts mismatch: in=%s out=%s", swap.AmountIn, swap.AmountOut)
	}
}

func TestDecodeFeePairSwap(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	feePair, err := FeePairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	pool := common.HexToAddress("0x6666666666666666666666666666666666666666")
	sender := common.HexToAddress("0x7777777777777777777777777777777777777777")

	data, err := feePair.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(0), big.NewInt(900), big.NewInt(45), big.NewInt(0),
		big.NewInt(2), big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xff"), types.Log{
			Address: pool,
			Topics:  []common.Hash{decoder.feePairSwapID, topicFromAddress(sender), topicFromAddress(sender)},
			Data:    data,
		}),
	})

	if len(events.Swaps) != 1 {
		t.Fatalf("expected 1 swap, got %d", len(events.Swaps))
	}
	swap := events.Swaps[0]
	if swap.TokenInIndex != 1 || swap.AmountIn.Int64() != 900 || swap.AmountOut.Int64() != 45 {
		t.Fatalf("fee layout mismatch: %+v", swap)
	}
}

func TestDecodePoolSwapSigned(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	pool, err := PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	poolAddr := common.HexToAddress("0x8888888888888888888888888888888888888888")
	sender := common.HexToAddress("0x9999999999999999999999999999999999999999")

	// amount0 negative means token0 left the pool, so token1 is the in
	// side.
	data, err := pool.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000), big.NewInt(2000),
		big.NewInt(123456789), big.NewInt(987654321), big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xab"), types.Log{
			Address: poolAddr,
			Topics:  []common.Hash{decoder.poolSwapID, topicFromAddress(sender), topicFromAddress(sender)},
			Data:    data,
		}),
	})

	if len(events.Swaps) != 1 {
		t.Fatalf("expected 1 swap, got %d", len(events.Swaps))
	}
	swap := events.Swaps[0]
	if swap.Kind != model.SwapConcentratedLiquidity {
		t.Fatalf("kind mismatch: %v", swap.Kind)
	}
	if swap.TokenInIndex != 1 {
		t.Fatalf("token1 should be the in side, got index %d", swap.TokenInIndex)
	}
	if swap.AmountIn.Int64() != 2000 || swap.AmountOut.Int64() != 1000 {
		t.Fatalf("amounts mismatch: in=%s out=%s", swap.AmountIn, swap.AmountOut)
	}
}

func TestDecodeShortDataCounted(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x4444444444444444444444444444444444444444")
	short := make([]byte, 64)

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xcd"),
			types.Log{
				Address: pool,
				Topics:  []common.Hash{decoder.pairSwapID},
				Data:    short,
			},
			types.Log{
				Address: pool,
				Topics:  []common.Hash{decoder.poolSwapID},
				Data:    short,
			},
		),
	})

	if len(events.Swaps) != 0 {
		t.Fatalf("short swaps should be dropped, got %d", len(events.Swaps))
	}
	if events.ShortData != 2 {
		t.Fatalf("expected 2 short-data logs, got %d", events.ShortData)
	}
}

func TestDecodeUnknownTopicIgnored(t *testing.T) {
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	events := decoder.DecodeBlock([]model.Receipt{
		buildReceipt(common.HexToHash("0xef"), types.Log{
			Address: common.HexToAddress("0x11"),
			Topics:  []common.Hash{common.HexToHash("0xdeadbeef")},
			Data:    make([]byte, 128),
		}),
	})

	if len(events.Transfers) != 0 || len(events.Swaps) != 0 || events.ShortData != 0 {
		t.Fatalf("unknown topic should be ignored: %+v", events)
	}
}
