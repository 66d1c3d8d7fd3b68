package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brojonat/daiwatch/service/metrics"
	"github.com/brojonat/daiwatch/service/transfers"
)

//go:embed schema.sql
var schemaSQL string

const transfersTable = "dai_transfers"

// Store archives observed transfers in Postgres. The archive is write-mostly:
// the dashboard never reads from it, only the CLI does.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the transfers table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, schemaSQL)
	s.metrics.RecordDBQuery("migrate", transfersTable, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ListParams filters and pages archived transfers.
type ListParams struct {
	// Sender and Recipient are case-sensitive substrings, as on the dashboard.
	Sender    string
	Recipient string
	Limit     int32
	Offset    int32
}

// SaveTransfers inserts records in a single batch. Records already archived
// (same tx hash and log index) are ignored. It returns the number of rows
// actually inserted.
func (s *Store) SaveTransfers(ctx context.Context, records []transfers.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO dai_transfers
				(tx_hash, log_index, block_number, block_time, sender, recipient, value, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
			ON CONFLICT (tx_hash, log_index) DO NOTHING`,
			r.TxHash,
			int32(r.LogIndex),
			int64(r.BlockNumber),
			r.Timestamp,
			r.Sender,
			r.Recipient,
			r.Value.String(),
			string(r.Source),
		)
	}

	start := time.Now()
	results := s.pool.SendBatch(ctx, batch)
	var inserted int64
	var batchErr error
	for range records {
		tag, err := results.Exec()
		if err != nil {
			batchErr = err
			break
		}
		inserted += tag.RowsAffected()
	}
	if err := results.Close(); err != nil && batchErr == nil {
		batchErr = err
	}
	s.metrics.RecordDBQuery("insert", transfersTable, time.Since(start).Seconds(), batchErr)
	if batchErr != nil {
		return inserted, fmt.Errorf("failed to save transfers: %w", batchErr)
	}

	return inserted, nil
}

// ListRecentTransfers returns archived transfers, newest block time first.
func (s *Store) ListRecentTransfers(ctx context.Context, params ListParams) ([]transfers.Record, error) {
	if params.Limit <= 0 {
		params.Limit = transfers.DefaultMaxSize
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, log_index, block_number, block_time, sender, recipient, value::text, source
		FROM dai_transfers
		WHERE ($1::text = '' OR POSITION($1::text IN sender) > 0)
		  AND ($2::text = '' OR POSITION($2::text IN recipient) > 0)
		ORDER BY block_time DESC, block_number DESC, log_index DESC
		LIMIT $3 OFFSET $4`,
		params.Sender, params.Recipient, params.Limit, params.Offset,
	)
	if err != nil {
		s.metrics.RecordDBQuery("select", transfersTable, time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	records := make([]transfers.Record, 0, params.Limit)
	for rows.Next() {
		r, err := scanTransfer(rows)
		if err != nil {
			s.metrics.RecordDBQuery("select", transfersTable, time.Since(start).Seconds(), err)
			return nil, err
		}
		records = append(records, r)
	}
	err = rows.Err()
	s.metrics.RecordDBQuery("select", transfersTable, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfers: %w", err)
	}

	return records, nil
}

// CountTransfers returns the number of archived transfers.
func (s *Store) CountTransfers(ctx context.Context) (int64, error) {
	start := time.Now()
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dai_transfers`).Scan(&count)
	s.metrics.RecordDBQuery("count", transfersTable, time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return count, nil
}

func scanTransfer(rows pgx.Rows) (transfers.Record, error) {
	var (
		r        transfers.Record
		logIndex int32
		block    int64
		value    string
		source   string
	)
	if err := rows.Scan(&r.TxHash, &logIndex, &block, &r.Timestamp, &r.Sender, &r.Recipient, &value, &source); err != nil {
		return transfers.Record{}, fmt.Errorf("failed to scan transfer: %w", err)
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return transfers.Record{}, fmt.Errorf("invalid archived value %q: %w", value, err)
	}
	r.LogIndex = uint(logIndex)
	r.BlockNumber = uint64(block)
	r.Value = v
	r.Source = transfers.Source(source)
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}
