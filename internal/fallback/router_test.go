package fallback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/localstore"
	"github.com/kilupskalvis/bizstore/internal/models"
	"github.com/kilupskalvis/bizstore/internal/persist"
	"github.com/kilupskalvis/bizstore/internal/remote"
	"github.com/kilupskalvis/bizstore/internal/storage"
)

var (
	errDenied   = &remote.RemoteError{Code: "42501", Message: "permission denied for table products", Status: 403}
	errRecurse  = &remote.RemoteError{Code: "42P17", Message: "infinite recursion detected in policy", Status: 500}
	errConflict = &remote.RemoteError{Code: "23505", Message: "duplicate key", Status: 409}
	errOffline  = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
)

type fixture struct {
	router *Router
	remote *remote.MockStore
	local  *localstore.Store
	medium *storage.MemoryMedium
	logs   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	medium := storage.NewMemoryMedium(0)
	local := localstore.New(persist.New(medium, logger), logger)
	rs := remote.NewMockStore()
	return &fixture{
		router: New(rs, local, logger),
		remote: rs,
		local:  local,
		medium: medium,
		logs:   logs,
	}
}

func (f *fixture) localKeys(t *testing.T) []string {
	t.Helper()
	keys, err := f.medium.Keys()
	require.NoError(t, err)
	return keys
}

func TestExecute_RemoteSuccessLeavesLocalUntouched(t *testing.T) {
	f := newFixture(t)
	f.remote.Seed("products", models.Record{"id": "p1", "business_id": "b1"})

	res, err := f.router.Execute(context.Background(),
		models.QueryOp("products", models.Query{Filters: map[string]any{"business_id": "b1"}}))
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, res.Source)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "p1", res.Records[0].ID())

	inserted, err := f.router.Insert(context.Background(), "customers", models.Record{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "remote-1", inserted[0].ID())

	assert.Empty(t, f.localKeys(t))
	assert.Empty(t, f.local.Query("customers", models.Query{}))
}

func TestExecute_EmptyRemoteResultIsNotFallback(t *testing.T) {
	f := newFixture(t)
	_, err := f.local.Insert("products", models.Record{"id": "p-local"})
	require.NoError(t, err)

	res, err := f.router.Execute(context.Background(), models.QueryOp("products", models.Query{}))
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, res.Source)
	assert.Empty(t, res.Records)
}

func TestExecute_PermissionFallsBackToLocal(t *testing.T) {
	for name, denial := range map[string]error{
		"insufficient privilege": errDenied,
		"policy recursion":       errRecurse,
		"message only":           errors.New("new row violates row-level security policy"),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.remote.FailTable("customers", denial)

			out, err := f.router.Insert(context.Background(), "customers", models.Record{"name": "Alice"})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.True(t, f.local.IsLocalID(out[0].ID()))

			// The identical query against the local store sees the row.
			res, err := f.router.Execute(context.Background(), models.QueryOp("customers", models.Query{}))
			require.NoError(t, err)
			assert.Equal(t, SourceLocal, res.Source)
			assert.Equal(t, f.local.Query("customers", models.Query{}), res.Records)

			assert.Contains(t, f.logs.String(), "serving from local store")
			assert.Contains(t, f.logs.String(), "table=customers")
		})
	}
}

func TestExecute_NonPermissionPropagatesClassified(t *testing.T) {
	cases := map[string]struct {
		err  error
		kind dberr.Kind
	}{
		"network":  {errOffline, dberr.KindNetwork},
		"conflict": {errConflict, dberr.KindConflict},
		"unknown":  {errors.New("something odd"), dberr.KindUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.remote.FailTable("sales", tc.err)

			_, err := f.router.Insert(context.Background(), "sales", models.Record{"total": 10})
			require.Error(t, err)

			var classified *dberr.Error
			require.ErrorAs(t, err, &classified)
			assert.Equal(t, tc.kind, classified.Kind)
			assert.ErrorIs(t, err, tc.err)

			assert.Empty(t, f.localKeys(t))
			assert.Empty(t, f.local.Query("sales", models.Query{}))
		})
	}
}

func TestExecute_NetworkErrorIsRetriable(t *testing.T) {
	f := newFixture(t)
	f.remote.FailTable("products", errors.New("TypeError: Failed to fetch"))

	_, err := f.router.Query(context.Background(), "products", models.Query{})
	var classified *dberr.Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, dberr.KindNetwork, classified.Kind)
	assert.True(t, classified.Retriable)
}

func TestExecute_LocalIDSkipsRemote(t *testing.T) {
	f := newFixture(t)
	out, err := f.local.Insert("customers", models.Record{"name": "Alice"})
	require.NoError(t, err)
	id := out[0].ID()

	updated, err := f.router.Update(context.Background(), "customers", id, models.Record{"name": "Alicia"})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated["name"])

	rows, err := f.router.Query(context.Background(), "customers", models.Query{Filters: map[string]any{"id": id}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = f.router.Upsert(context.Background(), "customers", models.Record{"id": id, "phone": "1"})
	require.NoError(t, err)

	require.NoError(t, f.router.Delete(context.Background(), "customers", id))
	assert.Equal(t, 0, f.remote.CallCount("customers"))
}

func TestExecute_LocalFailurePropagatesOneHop(t *testing.T) {
	f := newFixture(t)
	f.remote.FailTable("customers", errDenied)

	_, err := f.router.Update(context.Background(), "customers", "c-remote", models.Record{"name": "x"})
	assert.ErrorIs(t, err, dberr.ErrNotFound)
	assert.Equal(t, 1, f.remote.CallCount("customers"))

	err = f.router.Delete(context.Background(), "customers", "c-remote")
	assert.ErrorIs(t, err, dberr.ErrNotFound)
	assert.Equal(t, 2, f.remote.CallCount("customers"))
}

func TestExecute_NilRemoteRoutesLocal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	local := localstore.New(persist.New(storage.NewMemoryMedium(0), logger), logger)
	r := New(nil, local, logger)

	res, err := r.Execute(context.Background(), models.InsertOp("expenses", models.Record{"amount": 5}))
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, res.Source)
	assert.Len(t, local.Query("expenses", models.Query{}), 1)
}

func TestExecute_InvalidOperation(t *testing.T) {
	f := newFixture(t)
	_, err := f.router.Execute(context.Background(), models.Operation{Table: "x", Verb: models.VerbUpdate})
	assert.ErrorIs(t, err, models.ErrMissingID)

	_, err = f.router.Execute(context.Background(), models.Operation{Verb: models.VerbQuery})
	assert.ErrorIs(t, err, models.ErrMissingTable)
	assert.Equal(t, 0, f.remote.CallCount(""))
}
