package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapKind identifies the wire layout a swap log was decoded from.
type SwapKind int

const (
	// SwapConstantProduct covers the 4-word and 6-word pair layouts.
	SwapConstantProduct SwapKind = iota
	// SwapConcentratedLiquidity covers the tick-aware pool layout.
	SwapConcentratedLiquidity
)

// RawTransfer is a classified Transfer log before enrichment.
type RawTransfer struct {
	Token    common.Address
	From     common.Address
	To       common.Address
	RawValue *big.Int
	TxHash   common.Hash
	LogIndex uint64
}

// RawSwap is a classified Swap log with direction already resolved in
// terms of pool token indices. TokenInIndex is 0 when token0 flowed into
// the pool, 1 otherwise; amounts are raw unsigned magnitudes.
type RawSwap struct {
	Kind         SwapKind
	Pool         common.Address
	TokenInIndex int
	AmountIn     *big.Int
	AmountOut    *big.Int
	TxHash       common.Hash
	LogIndex     uint64
}
