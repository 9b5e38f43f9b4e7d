package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"transferScope/internal/model"
)

type captureWriter struct {
	batches [][]model.PriceRecord
}

func (w *captureWriter) WritePrices(_ context.Context, records []model.PriceRecord) error {
	batch := make([]model.PriceRecord, len(records))
	copy(batch, records)
	w.batches = append(w.batches, batch)
	return nil
}

func (w *captureWriter) all() []model.PriceRecord {
	var out []model.PriceRecord
	for _, batch := range w.batches {
		out = append(out, batch...)
	}
	return out
}

func TestWorkerResolvesUniqueTasks(t *testing.T) {
	source := &fakeSource{
		listings: baseListings(),
		prices: map[string]decimal.Decimal{
			"usd-coin|15-01-2024": decimal.RequireFromString("0.9998"),
		},
	}
	resolver := newTestResolver(t, source, ModeInline)
	writer := &captureWriter{}

	tasks := []model.PriceTask{
		{TokenContract: usdcAddr.Hex(), Date: "15-01-2024"},
		{TokenContract: usdcAddr.Hex(), Date: "15-01-2024"},
		{TokenContract: wethAddr.Hex(), Date: "15-01-2024"},
	}

	if err := NewWorker(resolver, writer, zap.NewNop()).Run(context.Background(), tasks); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	records := writer.all()
	if len(records) != 2 {
		t.Fatalf("expected 2 records after dedupe, got %d", len(records))
	}

	byToken := make(map[string]model.PriceRecord)
	for _, rec := range records {
		byToken[rec.TokenContract] = rec
	}
	usdc := byToken[usdcAddr.Hex()]
	if usdc.USD == nil || usdc.USD.String() != "0.9998" {
		t.Fatalf("usdc price mismatch: %+v", usdc)
	}
	// No quote still produces a record with a null value, so the task is
	// never re-attempted.
	weth := byToken[wethAddr.Hex()]
	if weth.Date != "15-01-2024" || weth.USD != nil {
		t.Fatalf("weth record mismatch: %+v", weth)
	}
}

func TestWorkerBatchesProgressiveWrites(t *testing.T) {
	source := &fakeSource{listings: baseListings()}
	resolver := newTestResolver(t, source, ModeInline)
	writer := &captureWriter{}

	var tasks []model.PriceTask
	for day := 1; day <= 25; day++ {
		tasks = append(tasks, model.PriceTask{
			TokenContract: usdcAddr.Hex(),
			Date:          DayFromUnix(uint64(1705276800 + day*86400)),
		})
	}

	if err := NewWorker(resolver, writer, zap.NewNop()).Run(context.Background(), tasks); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	if len(writer.batches) != 2 {
		t.Fatalf("expected a full batch plus a remainder, got %d", len(writer.batches))
	}
	if len(writer.batches[0]) != workerBatchSize || len(writer.batches[1]) != 5 {
		t.Fatalf("batch sizes mismatch: %d, %d", len(writer.batches[0]), len(writer.batches[1]))
	}
}

func TestWorkerSkipsMalformedTasks(t *testing.T) {
	resolver := newTestResolver(t, &fakeSource{listings: baseListings()}, ModeInline)
	writer := &captureWriter{}

	tasks := []model.PriceTask{
		{TokenContract: "not-an-address", Date: "15-01-2024"},
		{TokenContract: usdcAddr.Hex(), Date: "15-01-2024"},
	}

	if err := NewWorker(resolver, writer, zap.NewNop()).Run(context.Background(), tasks); err != nil {
		t.Fatalf("worker run: %v", err)
	}
	records := writer.all()
	if len(records) != 1 || records[0].TokenContract != usdcAddr.Hex() {
		t.Fatalf("malformed task should be skipped: %+v", records)
	}
}
