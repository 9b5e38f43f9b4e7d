package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func newRPCServer(t *testing.T, handle func(w http.ResponseWriter, req rpcRequest)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handle(w, req)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result string) {
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
}

func newTestClient(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), url, timeout)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestLatestBlockNumber(t *testing.T) {
	server := newRPCServer(t, func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "eth_blockNumber" {
			t.Errorf("unexpected method %s", req.Method)
		}
		writeResult(w, req.ID, `"0x64"`)
	})
	client := newTestClient(t, server.URL, time.Second)

	number, err := client.LatestBlockNumber(context.Background())
	if err != nil {
		t.Fatalf("latest block number: %v", err)
	}
	if number != 100 {
		t.Fatalf("expected block 100, got %d", number)
	}
}

func TestGetChainID(t *testing.T) {
	server := newRPCServer(t, func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "eth_chainId" {
			t.Errorf("unexpected method %s", req.Method)
		}
		writeResult(w, req.ID, `"0x2105"`)
	})
	client := newTestClient(t, server.URL, time.Second)

	id, err := client.GetChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id: %v", err)
	}
	if id.Int64() != 8453 {
		t.Fatalf("expected chain id 8453, got %s", id)
	}
}

func TestCallTimeoutBoundsStalledProvider(t *testing.T) {
	// The handler never answers; it returns only once the request is
	// cancelled from the client side. The body must be drained first:
	// the server only watches for a client disconnect (which cancels
	// r.Context()) after the request body has been consumed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	client := newTestClient(t, server.URL, 100*time.Millisecond)

	start := time.Now()
	_, err := client.LatestBlockNumber(context.Background())
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("call was not bounded by the timeout, took %s", elapsed)
	}
}

func TestBlockReceiptsEnvelopeFallback(t *testing.T) {
	hash := "0x1111111111111111111111111111111111111111111111111111111111111111"
	server := newRPCServer(t, func(w http.ResponseWriter, req rpcRequest) {
		if req.Method != "eth_getBlockReceipts" {
			t.Errorf("unexpected method %s", req.Method)
		}
		writeResult(w, req.ID, fmt.Sprintf(
			`{"receipts":[{"transactionHash":%q,"blockNumber":"0x64","logs":[]}]}`, hash))
	})
	client := newTestClient(t, server.URL, time.Second)

	receipts, err := client.BlockReceipts(context.Background(), 100)
	if err != nil {
		t.Fatalf("block receipts: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}
	if receipts[0].TxHash.Hex() != hash {
		t.Fatalf("tx hash mismatch: %s", receipts[0].TxHash.Hex())
	}
}

func TestBlockReceiptsProviderErrorNotRetryable(t *testing.T) {
	server := newRPCServer(t, func(w http.ResponseWriter, req rpcRequest) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"block pruned"}}`, req.ID)
	})
	client := newTestClient(t, server.URL, time.Second)

	_, err := client.BlockReceipts(context.Background(), 100)
	if err == nil {
		t.Fatalf("expected a provider error")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.Code != -32000 {
		t.Fatalf("expected provider error, got %v", err)
	}
	if IsRetryable(err) {
		t.Fatalf("provider errors must not be retried")
	}
}
