package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"transferScope/internal/model"
)

// Mode selects how enrichment obtains USD prices.
type Mode string

const (
	// ModeInline resolves prices during the block scan.
	ModeInline Mode = "inline"
	// ModeDeferred queues (token, date) tasks for a separate worker.
	ModeDeferred Mode = "deferred"
)

// ParseMode validates a configured pricing mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeInline, ModeDeferred:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown pricing mode: %q", s)
	}
}

// PriceSource is the provider surface the resolver needs.
type PriceSource interface {
	CoinList(ctx context.Context) ([]CoinListing, error)
	HistoricalPrice(ctx context.Context, id, date string) (*decimal.Decimal, error)
}

// Resolver maps token addresses to provider ids and resolves historical
// USD prices with a per-run (id, date) cache. In deferred mode it never
// touches the live price endpoint; it queues deduplicated tasks instead.
type Resolver struct {
	source   PriceSource
	platform string
	mode     Mode
	logger   *zap.Logger

	mu      sync.Mutex
	ids     map[common.Address]string
	prices  map[string]*decimal.Decimal
	known   map[string]struct{}
	queued  map[model.PriceTask]struct{}
	pending []model.PriceTask
}

// NewResolver builds a Resolver. platform is the provider's network key
// for contract-address mappings (e.g. "base").
func NewResolver(source PriceSource, platform string, mode Mode, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		source:   source,
		platform: platform,
		mode:     mode,
		logger:   logger,
		ids:      make(map[common.Address]string),
		prices:   make(map[string]*decimal.Decimal),
		known:    make(map[string]struct{}),
		queued:   make(map[model.PriceTask]struct{}),
	}
}

// Mode returns the configured pricing mode.
func (r *Resolver) Mode() Mode { return r.mode }

// BuildIDMap loads the bulk listing and indexes provider ids by
// checksummed contract address. Built once per run.
func (r *Resolver) BuildIDMap(ctx context.Context) error {
	listings, err := r.source.CoinList(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, listing := range listings {
		addr, ok := listing.Platforms[r.platform]
		if !ok || !common.IsHexAddress(addr) {
			continue
		}
		r.ids[common.HexToAddress(addr)] = listing.ID
	}
	r.logger.Info("provider id map built",
		zap.String("platform", r.platform),
		zap.Int("tokens", len(r.ids)),
	)
	return nil
}

// ProviderID returns the provider id mapped to a token address.
func (r *Resolver) ProviderID(token common.Address) (string, bool) {
	r.mu.Lock()
	id, ok := r.ids[token]
	r.mu.Unlock()
	return id, ok
}

// PriceFor returns the USD price for a token on a date. A (nil, nil)
// result means no price is available: unmapped token, deferred mode, or
// a provider day without a quote. A non-nil error marks a failed live
// fetch; the failure is cached negatively for the rest of the run.
//
// Deferred mode queues every (token, date) pair, mapped or not; tasks
// carry the token address and the worker does the provider-id mapping
// when it resolves them.
func (r *Resolver) PriceFor(ctx context.Context, token common.Address, date string) (*decimal.Decimal, error) {
	if r.mode == ModeDeferred {
		r.enqueue(token, date)
		return nil, nil
	}

	r.mu.Lock()
	id, ok := r.ids[token]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}

	key := id + "|" + date

	r.mu.Lock()
	if _, seen := r.known[key]; seen {
		price := r.prices[key]
		r.mu.Unlock()
		return price, nil
	}
	r.mu.Unlock()

	price, err := r.source.HistoricalPrice(ctx, id, date)
	if err != nil {
		price = nil
	}

	r.mu.Lock()
	r.known[key] = struct{}{}
	r.prices[key] = price
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return price, nil
}

func (r *Resolver) enqueue(token common.Address, date string) {
	task := model.PriceTask{TokenContract: token.Hex(), Date: date}
	r.mu.Lock()
	if _, ok := r.queued[task]; !ok {
		r.queued[task] = struct{}{}
		r.pending = append(r.pending, task)
	}
	r.mu.Unlock()
}

// DrainTasks returns the tasks queued since the last drain. The per-run
// dedup set is kept so a task is never queued twice in one run.
func (r *Resolver) DrainTasks() []model.PriceTask {
	r.mu.Lock()
	tasks := r.pending
	r.pending = nil
	r.mu.Unlock()
	return tasks
}

// DayFromUnix formats a unix timestamp as the provider's dd-mm-yyyy day
// key.
func DayFromUnix(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format("02-01-2006")
}
