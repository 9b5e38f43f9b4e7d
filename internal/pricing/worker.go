package pricing

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"transferScope/internal/model"
)

// workerBatchSize bounds how many resolved prices accumulate before a
// progressive write, so an interrupt loses little work.
const workerBatchSize = 20

// PriceWriter persists resolved price records.
type PriceWriter interface {
	WritePrices(ctx context.Context, records []model.PriceRecord) error
}

// Worker resolves deferred price tasks out of band and writes the
// results through the sink's caching contract.
type Worker struct {
	resolver *Resolver
	writer   PriceWriter
	logger   *zap.Logger
}

// NewWorker builds a Worker around an inline-mode resolver.
func NewWorker(resolver *Resolver, writer PriceWriter, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{resolver: resolver, writer: writer, logger: logger}
}

// Run resolves every unique (token, date) task once and persists the
// results in batches. Tasks without a provider mapping or a quote still
// produce a record with a null USD value.
func (w *Worker) Run(ctx context.Context, tasks []model.PriceTask) error {
	unique := dedupeTasks(tasks)
	w.logger.Info("price worker start", zap.Int("tasks", len(unique)))

	batch := make([]model.PriceRecord, 0, workerBatchSize)
	processed := 0
	for _, task := range unique {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !common.IsHexAddress(task.TokenContract) {
			w.logger.Warn("skipping malformed task", zap.String("token", task.TokenContract))
			continue
		}

		price, err := w.resolver.PriceFor(ctx, common.HexToAddress(task.TokenContract), task.Date)
		if err != nil {
			w.logger.Warn("price fetch failed",
				zap.String("token", task.TokenContract),
				zap.String("date", task.Date),
				zap.Error(err),
			)
		}

		batch = append(batch, model.PriceRecord{
			TokenContract: task.TokenContract,
			Date:          task.Date,
			USD:           price,
		})
		processed++

		if len(batch) >= workerBatchSize {
			if err := w.writer.WritePrices(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			w.logger.Info("price worker progress", zap.Int("processed", processed), zap.Int("total", len(unique)))
		}
	}

	if len(batch) > 0 {
		if err := w.writer.WritePrices(ctx, batch); err != nil {
			return err
		}
	}

	w.logger.Info("price worker complete", zap.Int("processed", processed))
	return nil
}

func dedupeTasks(tasks []model.PriceTask) []model.PriceTask {
	seen := make(map[model.PriceTask]struct{}, len(tasks))
	unique := make([]model.PriceTask, 0, len(tasks))
	for _, task := range tasks {
		if _, ok := seen[task]; ok {
			continue
		}
		seen[task] = struct{}{}
		unique = append(unique, task)
	}
	sort.Slice(unique, func(i, j int) bool {
		if unique[i].TokenContract != unique[j].TokenContract {
			return unique[i].TokenContract < unique[j].TokenContract
		}
		return unique[i].Date < unique[j].Date
	})
	return unique
}
