package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

func TestBlockLogCount(t *testing.T) {
	block := &Block{
		Number: 100,
		Receipts: []Receipt{
			{Logs: make([]types.Log, 3)},
			{Logs: nil},
			{Logs: make([]types.Log, 2)},
		},
	}
	if got := block.LogCount(); got != 5 {
		t.Fatalf("expected 5 logs, got %d", got)
	}
}
