package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TransferRecord is a fully enriched token transfer, unique on
// (TxHash, LogIndex). Records are never mutated after construction.
type TransferRecord struct {
	BlockNumber   uint64
	Timestamp     uint64
	Chain         string
	TxHash        string
	LogIndex      uint64
	TokenContract string
	TokenSymbol   string
	FromAddress   string
	ToAddress     string
	Value         decimal.Decimal
	USDValue      *decimal.Decimal
}

// SwapLeg is one side of a swap: the token and its normalized amount.
type SwapLeg struct {
	Contract string
	Symbol   string
	Amount   decimal.Decimal
	USDValue *decimal.Decimal
}

// SwapRecord is a fully enriched DEX swap, unique on (TxHash, LogIndex).
type SwapRecord struct {
	BlockNumber  uint64
	Timestamp    uint64
	Chain        string
	TxHash       string
	LogIndex     uint64
	PoolContract string
	TokenIn      SwapLeg
	TokenOut     SwapLeg
}

// NewTransferRecord validates the unique-key shape and address formats.
func NewTransferRecord(rec TransferRecord) (TransferRecord, error) {
	if err := validateKey(rec.Chain, rec.TxHash); err != nil {
		return TransferRecord{}, err
	}
	for _, addr := range []string{rec.TokenContract, rec.FromAddress, rec.ToAddress} {
		if !common.IsHexAddress(addr) {
			return TransferRecord{}, fmt.Errorf("invalid address: %s", addr)
		}
	}
	if rec.Value.IsNegative() {
		return TransferRecord{}, fmt.Errorf("negative transfer value: %s", rec.Value)
	}
	return rec, nil
}

// NewSwapRecord validates the unique-key shape and leg address formats.
func NewSwapRecord(rec SwapRecord) (SwapRecord, error) {
	if err := validateKey(rec.Chain, rec.TxHash); err != nil {
		return SwapRecord{}, err
	}
	for _, addr := range []string{rec.PoolContract, rec.TokenIn.Contract, rec.TokenOut.Contract} {
		if !common.IsHexAddress(addr) {
			return SwapRecord{}, fmt.Errorf("invalid address: %s", addr)
		}
	}
	if rec.TokenIn.Amount.IsNegative() || rec.TokenOut.Amount.IsNegative() {
		return SwapRecord{}, fmt.Errorf("negative swap amount")
	}
	return rec, nil
}

func validateKey(chain, txHash string) error {
	if chain == "" {
		return fmt.Errorf("chain is required")
	}
	if len(txHash) != 66 || txHash[:2] != "0x" {
		return fmt.Errorf("invalid tx hash: %s", txHash)
	}
	return nil
}
