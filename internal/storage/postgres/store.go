package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"transferScope/internal/model"
)

// Store provides Postgres persistence for the pipeline. Transfer and
// swap writes are insert-ignore on (transaction_hash, log_index);
// cursor and price writes are upserts on their natural keys.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects a pgx pool to the DSN.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WriteTransfers batch-inserts transfers; replayed rows are no-ops.
func (s *Store) WriteTransfers(ctx context.Context, _ uint64, records []model.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO token_transfers (
				transaction_hash, log_index, block_number, timestamp, chain,
				token_contract, token_symbol, from_address, to_address, value, usd_value
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (transaction_hash, log_index) DO NOTHING
		`,
			rec.TxHash,
			int64(rec.LogIndex),
			int64(rec.BlockNumber),
			int64(rec.Timestamp),
			rec.Chain,
			rec.TokenContract,
			rec.TokenSymbol,
			rec.FromAddress,
			rec.ToAddress,
			rec.Value.String(),
			nullableDecimal(rec.USDValue),
		)
	}
	return errors.Wrap(s.sendBatch(ctx, batch, len(records)), "insert transfers")
}

// WriteSwaps batch-inserts swaps; replayed rows are no-ops.
func (s *Store) WriteSwaps(ctx context.Context, _ uint64, records []model.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO dex_swaps (
				transaction_hash, log_index, block_number, timestamp, chain,
				pool_contract, token_in_contract, token_in_symbol, amount_in, usd_value_in,
				token_out_contract, token_out_symbol, amount_out, usd_value_out
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (transaction_hash, log_index) DO NOTHING
		`,
			rec.TxHash,
			int64(rec.LogIndex),
			int64(rec.BlockNumber),
			int64(rec.Timestamp),
			rec.Chain,
			rec.PoolContract,
			rec.TokenIn.Contract,
			rec.TokenIn.Symbol,
			rec.TokenIn.Amount.String(),
			nullableDecimal(rec.TokenIn.USDValue),
			rec.TokenOut.Contract,
			rec.TokenOut.Symbol,
			rec.TokenOut.Amount.String(),
			nullableDecimal(rec.TokenOut.USDValue),
		)
	}
	return errors.Wrap(s.sendBatch(ctx, batch, len(records)), "insert swaps")
}

// WriteTokens upserts resolved token metadata into the registry table.
func (s *Store) WriteTokens(ctx context.Context, tokens []model.TokenMeta) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(`
			INSERT INTO tokens (address, symbol, name, decimals)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (address) DO UPDATE SET
				symbol = EXCLUDED.symbol,
				name = EXCLUDED.name,
				decimals = EXCLUDED.decimals
		`,
			t.Address,
			t.Symbol,
			t.Name,
			int16(t.Decimals),
		)
	}
	return errors.Wrap(s.sendBatch(ctx, batch, len(tokens)), "upsert tokens")
}

// WritePrices upserts resolved prices; these are current-state facts,
// not append-only events.
func (s *Store) WritePrices(ctx context.Context, records []model.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO prices (token_contract, date, usd)
			VALUES ($1,$2,$3)
			ON CONFLICT (token_contract, date) DO UPDATE SET usd = EXCLUDED.usd
		`,
			rec.TokenContract,
			rec.Date,
			nullableDecimal(rec.USD),
		)
	}
	return errors.Wrap(s.sendBatch(ctx, batch, len(records)), "upsert prices")
}

// Load returns the chain's cursor from pipeline_state.
func (s *Store) Load(ctx context.Context, chain string) (uint64, bool, error) {
	if chain == "" {
		return 0, false, errors.New("chain is required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM pipeline_state WHERE chain=$1`, chain)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, "load cursor")
	}
	return uint64(block), true, nil
}

// Save upserts the chain's cursor. The cursor never moves backwards; a
// save below the stored block is ignored.
func (s *Store) Save(ctx context.Context, chain string, blockNumber uint64) error {
	if chain == "" {
		return errors.New("chain is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_state (chain, last_processed_block)
		VALUES ($1, $2)
		ON CONFLICT (chain) DO UPDATE SET last_processed_block = EXCLUDED.last_processed_block
		WHERE pipeline_state.last_processed_block < EXCLUDED.last_processed_block
	`, chain, int64(blockNumber))
	return errors.Wrap(err, "save cursor")
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, queued int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
