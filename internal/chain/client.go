package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"transferScope/internal/model"
)

// Client wraps go-ethereum RPC and provides helper methods. Every call
// carries its own deadline so a stalled provider cannot hang a run.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	timeout   time.Duration

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL. A timeout of
// zero disables per-call deadlines.
func NewClient(ctx context.Context, rpcURL string, timeout time.Duration) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		timeout:   timeout,
		tsCache:   make(map[uint64]uint64),
	}, nil
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.ethClient.HeaderByNumber(ctx, number)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// rpcReceipt is the minimal receipt shape needed from eth_getBlockReceipts.
type rpcReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	Logs            []types.Log    `json:"logs"`
}

// receiptEnvelope tolerates providers that wrap the receipt list in an
// object with a "receipts" field instead of returning a bare array.
type receiptEnvelope struct {
	Receipts []rpcReceipt `json:"receipts"`
}

// BlockReceipts fetches every transaction receipt of a block in
// transaction order. An explicit error payload in the RPC response is
// returned as a non-retryable provider error.
func (c *Client) BlockReceipts(ctx context.Context, number uint64) ([]model.Receipt, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	var raw []rpcReceipt
	err := c.rpcClient.CallContext(ctx, &raw, "eth_getBlockReceipts", hexutil.EncodeUint64(number))
	if err != nil {
		if classified := ClassifyRPCError(err); !IsRetryable(classified) {
			return nil, classified
		}
		// Some providers wrap the list; a bare-array unmarshal fails there.
		var envelope receiptEnvelope
		if envErr := c.rpcClient.CallContext(ctx, &envelope, "eth_getBlockReceipts", hexutil.EncodeUint64(number)); envErr != nil {
			return nil, ClassifyRPCError(err)
		}
		raw = envelope.Receipts
	}

	receipts := make([]model.Receipt, 0, len(raw))
	for _, r := range raw {
		receipts = append(receipts, model.Receipt{
			TxHash: r.TransactionHash,
			Logs:   r.Logs,
		})
	}
	return receipts, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", msg.To.Hex(), err)
	}
	return out, nil
}
