package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/rpc"
)

// ProviderError is an explicit error payload returned by the RPC
// provider. It signals a request the node actively rejected, so it is
// never retried.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// ClassifyRPCError converts json-rpc error payloads into ProviderError
// and leaves transport-level failures untouched.
func ClassifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}

// IsRetryable reports whether a fetch error is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var provErr *ProviderError
	return !errors.As(err, &provErr)
}
