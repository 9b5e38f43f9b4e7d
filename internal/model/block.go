package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the transient per-iteration view of one chain block: its
// timestamp plus every transaction receipt with logs attached.
type Block struct {
	Number    uint64
	Timestamp uint64
	Receipts  []Receipt
}

// Receipt carries the logs of a single transaction in log order.
type Receipt struct {
	TxHash common.Hash
	Logs   []types.Log
}

// LogCount returns the total number of logs across all receipts.
func (b *Block) LogCount() int {
	n := 0
	for _, r := range b.Receipts {
		n += len(r.Logs)
	}
	return n
}
