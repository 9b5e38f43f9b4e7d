package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"transferScope/internal/model"
)

const (
	tokensFile     = "tokens.csv"
	priceTasksFile = "price_tasks.csv"
	pricesFile     = "prices.csv"
)

// transferRow fixes the transfer column order for tabular output.
type transferRow struct {
	TransactionHash string `csv:"transactionHash"`
	LogIndex        uint64 `csv:"logIndex"`
	BlockNumber     uint64 `csv:"blockNumber"`
	Timestamp       uint64 `csv:"timestamp"`
	Chain           string `csv:"chain"`
	TokenContract   string `csv:"tokenContract"`
	TokenSymbol     string `csv:"tokenSymbol"`
	FromAddress     string `csv:"fromAddress"`
	ToAddress       string `csv:"toAddress"`
	Value           string `csv:"value"`
	USDValue        string `csv:"usdValue"`
}

// swapRow fixes the swap column order for tabular output.
type swapRow struct {
	TransactionHash  string `csv:"transactionHash"`
	LogIndex         uint64 `csv:"logIndex"`
	BlockNumber      uint64 `csv:"blockNumber"`
	Timestamp        uint64 `csv:"timestamp"`
	Chain            string `csv:"chain"`
	PoolContract     string `csv:"poolContract"`
	TokenInContract  string `csv:"tokenInContract"`
	TokenInSymbol    string `csv:"tokenInSymbol"`
	AmountIn         string `csv:"amountIn"`
	USDValueIn       string `csv:"usdValueIn"`
	TokenOutContract string `csv:"tokenOutContract"`
	TokenOutSymbol   string `csv:"tokenOutSymbol"`
	AmountOut        string `csv:"amountOut"`
	USDValueOut      string `csv:"usdValueOut"`
}

type tokenRow struct {
	Address  string `csv:"address"`
	Symbol   string `csv:"symbol"`
	Name     string `csv:"name"`
	Decimals uint8  `csv:"decimals"`
}

type priceRow struct {
	TokenContract string `csv:"tokenContract"`
	Date          string `csv:"date"`
	USD           string `csv:"usd"`
}

// CSVSink writes records as tabular files under a base directory:
// one transfers and one swaps file per block, plus cumulative token
// registry, price-task and resolved-price files. Each file gets its
// header exactly once, when it is created.
type CSVSink struct {
	dir string
	mu  sync.Mutex
}

// NewCSVSink builds a CSVSink rooted at dir.
func NewCSVSink(dir string) (*CSVSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CSVSink{dir: dir}, nil
}

// WriteTransfers writes the block's transfers to a per-block file. The
// file is rewritten whole, so re-processing a block cannot duplicate
// rows.
func (s *CSVSink) WriteTransfers(_ context.Context, blockNumber uint64, records []model.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]transferRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, transferRow{
			TransactionHash: rec.TxHash,
			LogIndex:        rec.LogIndex,
			BlockNumber:     rec.BlockNumber,
			Timestamp:       rec.Timestamp,
			Chain:           rec.Chain,
			TokenContract:   rec.TokenContract,
			TokenSymbol:     rec.TokenSymbol,
			FromAddress:     rec.FromAddress,
			ToAddress:       rec.ToAddress,
			Value:           rec.Value.String(),
			USDValue:        decimalOrEmpty(rec.USDValue),
		})
	}
	path := filepath.Join(s.dir, fmt.Sprintf("transfers_block_%d.csv", blockNumber))
	return s.rewrite(path, &rows)
}

// WriteSwaps writes the block's swaps to a per-block file.
func (s *CSVSink) WriteSwaps(_ context.Context, blockNumber uint64, records []model.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]swapRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, swapRow{
			TransactionHash:  rec.TxHash,
			LogIndex:         rec.LogIndex,
			BlockNumber:      rec.BlockNumber,
			Timestamp:        rec.Timestamp,
			Chain:            rec.Chain,
			PoolContract:     rec.PoolContract,
			TokenInContract:  rec.TokenIn.Contract,
			TokenInSymbol:    rec.TokenIn.Symbol,
			AmountIn:         rec.TokenIn.Amount.String(),
			USDValueIn:       decimalOrEmpty(rec.TokenIn.USDValue),
			TokenOutContract: rec.TokenOut.Contract,
			TokenOutSymbol:   rec.TokenOut.Symbol,
			AmountOut:        rec.TokenOut.Amount.String(),
			USDValueOut:      decimalOrEmpty(rec.TokenOut.USDValue),
		})
	}
	path := filepath.Join(s.dir, fmt.Sprintf("swaps_block_%d.csv", blockNumber))
	return s.rewrite(path, &rows)
}

// WriteTokens appends newly resolved tokens to the cumulative registry.
func (s *CSVSink) WriteTokens(_ context.Context, tokens []model.TokenMeta) error {
	if len(tokens) == 0 {
		return nil
	}
	rows := make([]tokenRow, 0, len(tokens))
	for _, t := range tokens {
		rows = append(rows, tokenRow{
			Address:  t.Address,
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
		})
	}
	return s.append(filepath.Join(s.dir, tokensFile), &rows)
}

// WritePriceTasks appends deferred tasks to the cumulative queue file.
func (s *CSVSink) WritePriceTasks(_ context.Context, tasks []model.PriceTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return s.append(filepath.Join(s.dir, priceTasksFile), &tasks)
}

// WritePrices appends resolved prices to the cumulative price file.
func (s *CSVSink) WritePrices(_ context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]priceRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, priceRow{
			TokenContract: rec.TokenContract,
			Date:          rec.Date,
			USD:           decimalOrEmpty(rec.USD),
		})
	}
	return s.append(filepath.Join(s.dir, pricesFile), &rows)
}

// ReadPriceTasks loads the cumulative task queue; a missing file means
// no tasks.
func (s *CSVSink) ReadPriceTasks() ([]model.PriceTask, error) {
	path := filepath.Join(s.dir, priceTasksFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open price tasks: %w", err)
	}
	defer file.Close()

	var tasks []model.PriceTask
	if err := gocsv.UnmarshalFile(file, &tasks); err != nil {
		return nil, fmt.Errorf("parse price tasks: %w", err)
	}
	return tasks, nil
}

func (s *CSVSink) rewrite(path string, rows interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *CSVSink) append(path string, rows interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if isNew {
		if err := gocsv.MarshalFile(rows, file); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, file); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

func decimalOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
