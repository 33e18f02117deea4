package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/models"
)

// RetryConfig configures retry behavior for network failures.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns the defaults. Retrying is off unless MaxRetries
// is raised.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     0,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryStore wraps a Store with retries of network failures on idempotent
// verbs. Inserts are never retried.
type RetryStore struct {
	inner  Store
	config *RetryConfig
	logger *slog.Logger
}

var _ Store = (*RetryStore)(nil)

// NewRetryStore creates a RetryStore that wraps inner.
func NewRetryStore(inner Store, cfg *RetryConfig, logger *slog.Logger) *RetryStore {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryStore{inner: inner, config: cfg, logger: logger}
}

// isTransient returns true for errors that are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return dberr.Classify(err).Kind == dberr.KindNetwork
}

func (rs *RetryStore) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rs.config.InitialBackoff
	b.MaxInterval = rs.config.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = rs.config.JitterFraction
	b.Reset()
	return b
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn, retrying transient failures up to MaxRetries times.
// The last error is returned unwrapped so callers can still classify it.
func (rs *RetryStore) retry(ctx context.Context, operation string, fn func() error) error {
	b := rs.newBackOff()
	var lastErr error
	for attempt := 0; attempt <= rs.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) || attempt == rs.config.MaxRetries {
			return lastErr
		}

		d := b.NextBackOff()
		if d == backoff.Stop {
			d = rs.config.MaxBackoff
		}
		rs.logger.Debug("retrying remote call", "operation", operation, "attempt", attempt+1, "delay", d, "error", lastErr)
		if err := sleep(ctx, d); err != nil {
			return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
		}
	}
	return lastErr
}

func (rs *RetryStore) Select(ctx context.Context, table string, q models.Query) (rows []models.Record, err error) {
	err = rs.retry(ctx, "select "+table, func() error {
		rows, err = rs.inner.Select(ctx, table, q)
		return err
	})
	return
}

func (rs *RetryStore) Insert(ctx context.Context, table string, records []models.Record) ([]models.Record, error) {
	// Not idempotent: a lost response may still have created the rows.
	return rs.inner.Insert(ctx, table, records)
}

func (rs *RetryStore) Update(ctx context.Context, table, id string, patch models.Record) (row models.Record, err error) {
	err = rs.retry(ctx, "update "+table, func() error {
		row, err = rs.inner.Update(ctx, table, id, patch)
		return err
	})
	return
}

func (rs *RetryStore) Delete(ctx context.Context, table, id string) error {
	return rs.retry(ctx, "delete "+table, func() error {
		return rs.inner.Delete(ctx, table, id)
	})
}

func (rs *RetryStore) Upsert(ctx context.Context, table string, record models.Record) (row models.Record, err error) {
	err = rs.retry(ctx, "upsert "+table, func() error {
		row, err = rs.inner.Upsert(ctx, table, record)
		return err
	})
	return
}
