// Package pgstore implements the remote store directly on PostgreSQL. Driver
// errors are returned as *pgconn.PgError so their SQLSTATE reaches the
// classifier.
package pgstore

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/models"
	"github.com/kilupskalvis/bizstore/internal/remote"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists records in PostgreSQL tables keyed by an "id" column.
type Store struct {
	pool *pgxpool.Pool
}

var _ remote.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	observePool(pool)
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func observePool(pool *pgxpool.Pool) {
	meter := otel.Meter("bizstore/pgstore")
	_, _ = meter.Int64ObservableGauge("bizstore_db_pool_connections_acquired",
		metric.WithDescription("Connections currently acquired by callers"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(pool.Stat().AcquiredConns()))
			return nil
		}),
	)
}

func (s *Store) run(ctx context.Context, q querier, st statement) ([]models.Record, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("pgstore: nil pool")
	}
	rows, err := q.Query(ctx, st.sql, st.args...)
	if err != nil {
		return nil, err
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}

	out := make([]models.Record, 0, len(raw))
	for _, data := range raw {
		var rec models.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Select reads rows matching q.
func (s *Store) Select(ctx context.Context, table string, q models.Query) ([]models.Record, error) {
	return s.run(ctx, s.pool, buildSelect(table, q))
}

// Insert creates every record in one transaction.
func (s *Store) Insert(ctx context.Context, table string, records []models.Record) ([]models.Record, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("pgstore: nil pool")
	}
	out := make([]models.Record, 0, len(records))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, rec := range records {
			rows, err := s.run(ctx, tx, buildInsert(table, rec))
			if err != nil {
				return err
			}
			out = append(out, rows...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update patches the row with id.
func (s *Store) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error) {
	rows, err := s.run(ctx, s.pool, buildUpdate(table, id, patch))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dberr.NotFound(table, id)
	}
	return rows[0], nil
}

// Delete removes the row with id.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	rows, err := s.run(ctx, s.pool, buildDelete(table, id))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return dberr.NotFound(table, id)
	}
	return nil
}

// Upsert inserts record or updates the row sharing its id.
func (s *Store) Upsert(ctx context.Context, table string, record models.Record) (models.Record, error) {
	if record.ID() == "" {
		out, err := s.Insert(ctx, table, []models.Record{record})
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, dberr.NotFound(table, "")
		}
		return out[0], nil
	}
	rows, err := s.run(ctx, s.pool, buildUpsert(table, record))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dberr.NotFound(table, record.ID())
	}
	return rows[0], nil
}
