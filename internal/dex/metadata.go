package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"transferScope/internal/model"
)

// ContractCaller performs read-only contract calls. *chain.Client
// satisfies it; tests use fakes.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenResolver resolves ERC20 metadata with a write-once cache. A nil
// cached value is a negative result: the address is not a standard
// token and is never re-fetched within the run.
type TokenResolver struct {
	caller ContractCaller
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]*model.TokenMeta
}

// NewTokenResolver builds a TokenResolver. Seed may pre-populate the
// cache for tests.
func NewTokenResolver(caller ContractCaller, logger *zap.Logger) *TokenResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenResolver{
		caller: caller,
		logger: logger,
		cache:  make(map[common.Address]*model.TokenMeta),
	}
}

// Seed inserts a cache entry without a network call.
func (r *TokenResolver) Seed(addr common.Address, meta *model.TokenMeta) {
	r.mu.Lock()
	if _, ok := r.cache[addr]; !ok {
		r.cache[addr] = meta
	}
	r.mu.Unlock()
}

// Resolve returns token metadata, or nil for addresses that do not
// expose the standard interface. Results, including failures, are
// cached for the lifetime of the process.
func (r *TokenResolver) Resolve(ctx context.Context, addr common.Address) *model.TokenMeta {
	r.mu.RLock()
	meta, ok := r.cache[addr]
	r.mu.RUnlock()
	if ok {
		return meta
	}

	meta, err := r.fetch(ctx, addr)
	if err != nil {
		r.logger.Warn("token metadata fetch failed", zap.String("token", addr.Hex()), zap.Error(err))
		meta = nil
	}

	r.mu.Lock()
	if cached, ok := r.cache[addr]; ok {
		meta = cached
	} else {
		r.cache[addr] = meta
	}
	r.mu.Unlock()
	return meta
}

func (r *TokenResolver) fetch(ctx context.Context, addr common.Address) (*model.TokenMeta, error) {
	stringABI, err := erc20ABIString.get()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	meta := &model.TokenMeta{Address: addr.Hex()}

	values, err := callMethod(ctx, r.caller, addr, stringABI, "decimals")
	if err != nil {
		return nil, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return nil, fmt.Errorf("decimals: %w", err)
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, r.caller, addr, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, r.caller, addr, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", addr.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, r.caller, addr, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callMethod(ctx, r.caller, addr, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		r.logger.Debug("name call failed", zap.String("token", addr.Hex()), zap.Error(err))
	}

	return meta, nil
}

// PoolResolver resolves a pool's token pair with a write-once cache.
// Resolution first tries the token0()/token1() accessors, then the
// single tokens() accessor before caching a negative result.
type PoolResolver struct {
	caller ContractCaller
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]*model.PoolTokens
}

// NewPoolResolver builds a PoolResolver.
func NewPoolResolver(caller ContractCaller, logger *zap.Logger) *PoolResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolResolver{
		caller: caller,
		logger: logger,
		cache:  make(map[common.Address]*model.PoolTokens),
	}
}

// Seed inserts a cache entry without a network call.
func (r *PoolResolver) Seed(addr common.Address, tokens *model.PoolTokens) {
	r.mu.Lock()
	if _, ok := r.cache[addr]; !ok {
		r.cache[addr] = tokens
	}
	r.mu.Unlock()
}

// Resolve returns the pool's token pair, or nil when neither interface
// answers. Results, including failures, are cached for the run.
func (r *PoolResolver) Resolve(ctx context.Context, pool common.Address) *model.PoolTokens {
	r.mu.RLock()
	tokens, ok := r.cache[pool]
	r.mu.RUnlock()
	if ok {
		return tokens
	}

	tokens, err := r.fetch(ctx, pool)
	if err != nil {
		r.logger.Warn("pool token resolution failed", zap.String("pool", pool.Hex()), zap.Error(err))
		tokens = nil
	}

	r.mu.Lock()
	if cached, ok := r.cache[pool]; ok {
		tokens = cached
	} else {
		r.cache[pool] = tokens
	}
	r.mu.Unlock()
	return tokens
}

func (r *PoolResolver) fetch(ctx context.Context, pool common.Address) (*model.PoolTokens, error) {
	pair, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}

	token0, err0 := callAddress(ctx, r.caller, pool, pair, "token0")
	if err0 == nil {
		token1, err1 := callAddress(ctx, r.caller, pool, pair, "token1")
		if err1 == nil {
			return &model.PoolTokens{
				Pool:   pool.Hex(),
				Token0: token0.Hex(),
				Token1: token1.Hex(),
			}, nil
		}
		err0 = err1
	}

	tokensABI, err := pairTokensABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse tokens abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, pool, tokensABI, "tokens")
	if err != nil {
		return nil, fmt.Errorf("both pool interfaces failed: %w (primary: %v)", err, err0)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected tokens() arity: %d", len(values))
	}
	token0, err = asAddress(values[0])
	if err != nil {
		return nil, err
	}
	token1, err := asAddress(values[1])
	if err != nil {
		return nil, err
	}
	return &model.PoolTokens{
		Pool:   pool.Hex(),
		Token0: token0.Hex(),
		Token1: token1.Hex(),
	}, nil
}

func callMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func callAddress(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string) (common.Address, error) {
	values, err := callMethod(ctx, caller, to, parsed, method)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
