package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"

	// listCacheTTL is the freshness window of the local coin list cache.
	listCacheTTL = 24 * time.Hour

	// rateLimitSleep spaces out live requests for the provider's free
	// tier. Cache hits never sleep.
	rateLimitSleep = 1200 * time.Millisecond

	maxAttempts = 3
	backoffStep = 1500 * time.Millisecond
)

// CoinListing is one entry of the provider's bulk token listing, with
// per-network contract address mappings.
type CoinListing struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

// CoinGeckoClient talks to the pricing provider. The HTTP client and
// sleep function are injectable for tests.
type CoinGeckoClient struct {
	baseURL       string
	httpClient    *http.Client
	listCachePath string
	logger        *zap.Logger
	sleep         func(time.Duration)
}

// CoinGeckoOption customizes a CoinGeckoClient.
type CoinGeckoOption func(*CoinGeckoClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) CoinGeckoOption {
	return func(c *CoinGeckoClient) { c.httpClient = hc }
}

// WithBaseURL replaces the API base URL.
func WithBaseURL(url string) CoinGeckoOption {
	return func(c *CoinGeckoClient) { c.baseURL = url }
}

// WithSleep replaces the rate-limit sleep function.
func WithSleep(fn func(time.Duration)) CoinGeckoOption {
	return func(c *CoinGeckoClient) { c.sleep = fn }
}

// NewCoinGeckoClient builds a client. listCachePath is where the bulk
// coin listing is cached locally; empty disables the cache.
func NewCoinGeckoClient(listCachePath string, timeout time.Duration, logger *zap.Logger, opts ...CoinGeckoOption) *CoinGeckoClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CoinGeckoClient{
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: timeout},
		listCachePath: listCachePath,
		logger:        logger,
		sleep:         time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CoinList returns the bulk token listing, served from the local cache
// file when it is fresher than 24 hours.
func (c *CoinGeckoClient) CoinList(ctx context.Context) ([]CoinListing, error) {
	if listings, ok := c.cachedList(); ok {
		return listings, nil
	}

	body, err := c.getWithRetry(ctx, c.baseURL+"/coins/list?include_platform=true")
	if err != nil {
		return nil, errors.Wrap(err, "fetch coin list")
	}

	var listings []CoinListing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, errors.Wrap(err, "parse coin list")
	}

	c.writeListCache(body)
	return listings, nil
}

func (c *CoinGeckoClient) cachedList() ([]CoinListing, bool) {
	if c.listCachePath == "" {
		return nil, false
	}
	stat, err := os.Stat(c.listCachePath)
	if err != nil || time.Since(stat.ModTime()) >= listCacheTTL {
		return nil, false
	}
	data, err := os.ReadFile(c.listCachePath)
	if err != nil {
		return nil, false
	}
	var listings []CoinListing
	if err := json.Unmarshal(data, &listings); err != nil {
		c.logger.Warn("stale coin list cache ignored", zap.Error(err))
		return nil, false
	}
	return listings, true
}

func (c *CoinGeckoClient) writeListCache(body []byte) {
	if c.listCachePath == "" {
		return
	}
	dir := filepath.Dir(c.listCachePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.logger.Warn("coin list cache dir", zap.Error(err))
			return
		}
	}
	if err := os.WriteFile(c.listCachePath, body, 0o644); err != nil {
		c.logger.Warn("coin list cache write failed", zap.Error(err))
	}
}

// historyResponse is the subset of the history payload we read.
type historyResponse struct {
	MarketData struct {
		CurrentPrice struct {
			USD *decimal.Decimal `json:"usd"`
		} `json:"current_price"`
	} `json:"market_data"`
}

// HistoricalPrice fetches the USD price of a provider id on a given
// dd-mm-yyyy date. A nil price with nil error means the provider has no
// quote for that day. Every live fetch is followed by the rate-limit
// sleep.
func (c *CoinGeckoClient) HistoricalPrice(ctx context.Context, id, date string) (*decimal.Decimal, error) {
	url := fmt.Sprintf("%s/coins/%s/history?date=%s", c.baseURL, id, date)
	body, err := c.getWithRetry(ctx, url)
	c.sleep(rateLimitSleep)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch price for %s on %s", id, date)
	}

	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "parse price history")
	}
	return resp.MarketData.CurrentPrice.USD, nil
}

// getWithRetry performs a GET with the same bounded linear backoff the
// chain fetcher uses.
func (c *CoinGeckoClient) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(backoffStep * time.Duration(attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("provider request failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("provider status %d", resp.StatusCode)
		}
		return body, nil
	}
	return nil, lastErr
}
