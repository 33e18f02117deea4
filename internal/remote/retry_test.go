package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/models"
)

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

func fastRetry(n int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:     n,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0.0,
	}
}

// flakyStore fails the first failures calls with err.
type flakyStore struct {
	*MockStore
	failures int
	err      error
	calls    int
}

func (f *flakyStore) Select(ctx context.Context, table string, q models.Query) ([]models.Record, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.MockStore.Select(ctx, table, q)
}

func (f *flakyStore) Insert(ctx context.Context, table string, records []models.Record) ([]models.Record, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.MockStore.Insert(ctx, table, records)
}

func TestIsTransient_NilError(t *testing.T) {
	assert.False(t, isTransient(nil))
}

func TestIsTransient_NetworkError(t *testing.T) {
	assert.True(t, isTransient(errRefused))
}

func TestIsTransient_PermissionError(t *testing.T) {
	err := &RemoteError{Status: 403, Code: "42501", Message: "permission denied"}
	assert.False(t, isTransient(err))
}

func TestIsTransient_Cancelled(t *testing.T) {
	assert.False(t, isTransient(context.Canceled))
}

func TestRetryStore_Backoff(t *testing.T) {
	rs := NewRetryStore(nil, &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0.0, // no jitter for deterministic test
	}, nil)

	b := rs.newBackOff()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 400*time.Millisecond, b.NextBackOff())
}

func TestRetryStore_BackoffCapped(t *testing.T) {
	rs := NewRetryStore(nil, &RetryConfig{
		MaxRetries:     10,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.0,
	}, nil)

	b := rs.newBackOff()
	var d time.Duration
	for i := 0; i < 10; i++ {
		d = b.NextBackOff()
	}
	assert.Equal(t, 5*time.Second, d)
}

func TestRetryStore_DefaultNeverRetries(t *testing.T) {
	inner := &flakyStore{MockStore: NewMockStore(), failures: 1, err: errRefused}
	rs := NewRetryStore(inner, nil, nil)

	_, err := rs.Select(context.Background(), "products", models.Query{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryStore_RetriesNetworkFailures(t *testing.T) {
	inner := &flakyStore{MockStore: NewMockStore(), failures: 2, err: errRefused}
	inner.Seed("products", models.Record{"id": "p1"})
	rs := NewRetryStore(inner, fastRetry(3), nil)

	rows, err := rs.Select(context.Background(), "products", models.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryStore_Exhausted(t *testing.T) {
	inner := &flakyStore{MockStore: NewMockStore(), failures: 10, err: errRefused}
	rs := NewRetryStore(inner, fastRetry(2), nil)

	_, err := rs.Select(context.Background(), "products", models.Query{})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, dberr.KindNetwork, dberr.Classify(err).Kind)
}

func TestRetryStore_NonTransientNotRetried(t *testing.T) {
	denied := &RemoteError{Status: 403, Code: "42501", Message: "permission denied"}
	inner := &flakyStore{MockStore: NewMockStore(), failures: 10, err: denied}
	rs := NewRetryStore(inner, fastRetry(3), nil)

	_, err := rs.Select(context.Background(), "products", models.Query{})
	assert.Equal(t, 1, inner.calls)
	assert.ErrorIs(t, dberr.Classify(err), dberr.ErrPermission)
}

func TestRetryStore_InsertNeverRetried(t *testing.T) {
	inner := &flakyStore{MockStore: NewMockStore(), failures: 1, err: errRefused}
	rs := NewRetryStore(inner, fastRetry(3), nil)

	_, err := rs.Insert(context.Background(), "customers", []models.Record{{"name": "Alice"}})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryStore_ContextCancelled(t *testing.T) {
	inner := &flakyStore{MockStore: NewMockStore(), failures: 10, err: errRefused}
	rs := NewRetryStore(inner, &RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rs.Select(ctx, "products", models.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Equal(t, 1, inner.calls)
}
