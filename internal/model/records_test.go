package model

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func validTransfer() TransferRecord {
	return TransferRecord{
		BlockNumber:   100,
		Timestamp:     1700000000,
		Chain:         "base",
		TxHash:        "0x" + strings.Repeat("ab", 32),
		LogIndex:      3,
		TokenContract: "0x1111111111111111111111111111111111111111",
		TokenSymbol:   "USDC",
		FromAddress:   "0x2222222222222222222222222222222222222222",
		ToAddress:     "0x3333333333333333333333333333333333333333",
		Value:         decimal.RequireFromString("1.5"),
	}
}

func validSwap() SwapRecord {
	return SwapRecord{
		BlockNumber:  100,
		Timestamp:    1700000000,
		Chain:        "base",
		TxHash:       "0x" + strings.Repeat("cd", 32),
		LogIndex:     5,
		PoolContract: "0x4444444444444444444444444444444444444444",
		TokenIn: SwapLeg{
			Contract: "0x1111111111111111111111111111111111111111",
			Symbol:   "USDC",
			Amount:   decimal.RequireFromString("100"),
		},
		TokenOut: SwapLeg{
			Contract: "0x5555555555555555555555555555555555555555",
			Symbol:   "WETH",
			Amount:   decimal.RequireFromString("0.04"),
		},
	}
}

func TestNewTransferRecordValid(t *testing.T) {
	rec, err := NewTransferRecord(validTransfer())
	if err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	if rec.Value.String() != "1.5" {
		t.Fatalf("value mismatch: %s", rec.Value)
	}
}

func TestNewTransferRecordValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TransferRecord)
	}{
		{"empty chain", func(r *TransferRecord) { r.Chain = "" }},
		{"short tx hash", func(r *TransferRecord) { r.TxHash = "0xab" }},
		{"missing 0x prefix", func(r *TransferRecord) { r.TxHash = strings.Repeat("ab", 33) }},
		{"bad token contract", func(r *TransferRecord) { r.TokenContract = "usdc" }},
		{"bad from address", func(r *TransferRecord) { r.FromAddress = "0x12" }},
		{"negative value", func(r *TransferRecord) { r.Value = decimal.RequireFromString("-1") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validTransfer()
			tc.mutate(&rec)
			if _, err := NewTransferRecord(rec); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNewSwapRecordValid(t *testing.T) {
	rec, err := NewSwapRecord(validSwap())
	if err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	if rec.TokenIn.Symbol != "USDC" || rec.TokenOut.Symbol != "WETH" {
		t.Fatalf("legs mismatch: %+v", rec)
	}
}

func TestNewSwapRecordValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SwapRecord)
	}{
		{"empty chain", func(r *SwapRecord) { r.Chain = "" }},
		{"short tx hash", func(r *SwapRecord) { r.TxHash = "0x01" }},
		{"bad pool contract", func(r *SwapRecord) { r.PoolContract = "pool" }},
		{"bad in contract", func(r *SwapRecord) { r.TokenIn.Contract = "" }},
		{"negative amount", func(r *SwapRecord) { r.TokenOut.Amount = decimal.RequireFromString("-5") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validSwap()
			tc.mutate(&rec)
			if _, err := NewSwapRecord(rec); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
