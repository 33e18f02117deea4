package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/bizstore/internal/config"
	"github.com/kilupskalvis/bizstore/internal/fallback"
	"github.com/kilupskalvis/bizstore/internal/models"
	"github.com/kilupskalvis/bizstore/internal/persist"
	"github.com/kilupskalvis/bizstore/internal/remote"
	"github.com/kilupskalvis/bizstore/internal/state"
	"github.com/kilupskalvis/bizstore/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) (*App, *remote.MockStore) {
	t.Helper()
	rs := remote.NewMockStore()
	app := New(config.Default(), storage.NewMemoryMedium(0), rs, quietLogger())
	t.Cleanup(func() { app.Close() })
	return app, rs
}

func TestOpen_BoltOffline(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "bizstore.db")

	app, err := Open(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, app.Remote)

	out, err := app.Router.Insert(context.Background(), "customers", models.Record{"name": "Alice"})
	require.NoError(t, err)
	assert.True(t, app.Local.IsLocalID(out[0].ID()))
	require.NoError(t, app.Close())

	// Reopening sees the durable row.
	app, err = Open(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer app.Close()
	rows := app.Local.Query("customers", models.Query{})
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0]["name"])
}

func TestOpen_PostgRESTWithRetries(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = storage.BackendMemory
	cfg.Remote.Kind = config.RemotePostgREST
	cfg.Remote.URL = "http://127.0.0.1:1"
	cfg.Remote.MaxRetries = 2

	app, err := Open(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer app.Close()

	_, ok := app.Remote.(*remote.RetryStore)
	assert.True(t, ok)
}

func TestOpen_UnknownRemote(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = storage.BackendMemory
	cfg.Remote.Kind = "carrier-pigeon"

	_, err := Open(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestRestoreBackup_ReloadsCaches(t *testing.T) {
	app, rs := newTestApp(t)
	rs.FailTable("products", errors.New("permission denied for table products"))

	_, err := app.Router.Insert(context.Background(), "products", models.Record{"name": "Tea"})
	require.NoError(t, err)
	require.NoError(t, app.State.Dispatch(state.AddProduct{Product: state.Product{Name: "Tea"}}))

	id, err := app.Persist.CreateBackup()
	require.NoError(t, err)

	_, err = app.Router.Insert(context.Background(), "products", models.Record{"name": "Coffee"})
	require.NoError(t, err)
	require.NoError(t, app.State.Dispatch(state.AddProduct{Product: state.Product{Name: "Coffee"}}))
	require.Len(t, app.Local.Query("products", models.Query{}), 2)

	restored, err := app.RestoreBackup(id)
	require.NoError(t, err)
	assert.True(t, restored)

	rows := app.Local.Query("products", models.Query{})
	require.Len(t, rows, 1)
	assert.Equal(t, "Tea", rows[0]["name"])
	require.Len(t, app.State.GetState().Products, 1)
	assert.Equal(t, "Tea", app.State.GetState().Products[0].Name)
}

func TestRestoreBackup_Missing(t *testing.T) {
	app, _ := newTestApp(t)
	require.NoError(t, app.State.Dispatch(state.AddUser{User: state.User{Email: "a@example.com"}}))

	restored, err := app.RestoreBackup("nope")
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Len(t, app.State.GetState().Users, 1)
}

func TestPrefetch(t *testing.T) {
	app, rs := newTestApp(t)
	rs.Seed("products", models.Record{"id": "p1"}, models.Record{"id": "p2"})
	rs.Seed("customers", models.Record{"id": "c1"})
	rs.FailTable("users", errors.New("permission denied for table users"))
	rs.FailTable("sales", errors.New("connection refused"))

	results, err := app.Prefetch(context.Background(), "products", "customers", "users", "sales")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prefetch sales")
	require.Len(t, results, 4)

	assert.Equal(t, PrefetchResult{Table: "products", Rows: 2, Source: fallback.SourceRemote, Cached: true}, results[0])
	assert.Equal(t, 1, results[1].Rows)
	assert.Equal(t, fallback.SourceLocal, results[2].Source)
	assert.False(t, results[2].Cached)
	assert.Error(t, results[3].Err)

	rows, ok := app.Offline("products")
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].ID())

	_, ok = app.Offline("users")
	assert.False(t, ok)

	assert.Contains(t, app.Persist.Keys(), persist.OfflineKey("customers"))
}

func TestPrefetch_OfflineCacheIsBackedUp(t *testing.T) {
	app, rs := newTestApp(t)
	rs.Seed("categories", models.Record{"id": "k1"})

	_, err := app.Prefetch(context.Background(), "categories")
	require.NoError(t, err)

	id, err := app.Persist.CreateBackup()
	require.NoError(t, err)
	snap, ok := app.Persist.GetBackup(id)
	require.True(t, ok)
	assert.Contains(t, snap.Payload, persist.OfflineKey("categories"))
}

func TestPrefetch_NoTables(t *testing.T) {
	app, _ := newTestApp(t)
	results, err := app.Prefetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
