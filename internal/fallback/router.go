// Package fallback routes logical table operations to the remote store and
// replays them on the local store when the remote denies access.
package fallback

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kilupskalvis/bizstore/internal/dberr"
	"github.com/kilupskalvis/bizstore/internal/localstore"
	"github.com/kilupskalvis/bizstore/internal/models"
	"github.com/kilupskalvis/bizstore/internal/remote"
)

// Source names the store that answered an operation.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Result is the outcome of Execute. Callers may ignore Source.
type Result struct {
	Records []models.Record
	Source  Source
}

// Router sends operations to the remote store first. A nil remote routes
// everything to the local store.
type Router struct {
	remote    remote.Store
	local     *localstore.Store
	logger    *slog.Logger
	fallbacks metric.Int64Counter
}

// New creates a Router.
func New(rs remote.Store, local *localstore.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("bizstore/fallback")
	counter, err := meter.Int64Counter("bizstore_fallbacks_total",
		metric.WithDescription("Operations served by the local store after a remote permission denial"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		counter = noop.Int64Counter{}
	}
	return &Router{remote: rs, local: local, logger: logger, fallbacks: counter}
}

// Execute runs op. Remote success is returned as is, including an empty
// result. A Permission failure is replayed once on the local store; every
// other failure is returned as a *dberr.Error and the local store is not
// touched.
func (r *Router) Execute(ctx context.Context, op models.Operation) (Result, error) {
	if err := op.Validate(); err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", op.Verb, op.Table, err)
	}

	if r.remote == nil || r.addressesLocal(op) {
		return r.runLocal(op)
	}

	records, err := r.runRemote(ctx, op)
	if err == nil {
		return Result{Records: records, Source: SourceRemote}, nil
	}

	classified := dberr.Classify(err)
	if classified.Kind != dberr.KindPermission {
		return Result{}, classified
	}

	r.logger.Warn("remote denied access, serving from local store",
		"table", op.Table, "verb", string(op.Verb), "code", classified.Code)
	r.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", op.Table),
		attribute.String("verb", string(op.Verb)),
	))

	return r.runLocal(op)
}

// addressesLocal reports whether op targets an id the remote never issued.
func (r *Router) addressesLocal(op models.Operation) bool {
	if r.local.IsLocalID(op.ID) {
		return true
	}
	for _, rec := range op.Payload {
		if r.local.IsLocalID(rec.ID()) {
			return true
		}
	}
	if id, ok := op.Query.Filters["id"].(string); ok && r.local.IsLocalID(id) {
		return true
	}
	return false
}

func (r *Router) runRemote(ctx context.Context, op models.Operation) ([]models.Record, error) {
	switch op.Verb {
	case models.VerbQuery:
		return r.remote.Select(ctx, op.Table, op.Query)
	case models.VerbInsert:
		return r.remote.Insert(ctx, op.Table, op.Payload)
	case models.VerbUpdate:
		rec, err := r.remote.Update(ctx, op.Table, op.ID, op.Payload[0])
		return single(rec, err)
	case models.VerbDelete:
		if err := r.remote.Delete(ctx, op.Table, op.ID); err != nil {
			return nil, err
		}
		return []models.Record{}, nil
	case models.VerbUpsert:
		rec, err := r.remote.Upsert(ctx, op.Table, op.Payload[0])
		return single(rec, err)
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnknownVerb, op.Verb)
}

func (r *Router) runLocal(op models.Operation) (Result, error) {
	var (
		records []models.Record
		err     error
	)
	switch op.Verb {
	case models.VerbQuery:
		records = r.local.Query(op.Table, op.Query)
	case models.VerbInsert:
		records, err = r.local.Insert(op.Table, op.Payload...)
	case models.VerbUpdate:
		records, err = single(r.local.Update(op.Table, op.ID, op.Payload[0]))
	case models.VerbDelete:
		if err = r.local.Remove(op.Table, op.ID); err == nil {
			records = []models.Record{}
		}
	case models.VerbUpsert:
		records, err = single(r.local.Upsert(op.Table, op.Payload[0]))
	default:
		err = fmt.Errorf("%w: %s", models.ErrUnknownVerb, op.Verb)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Records: records, Source: SourceLocal}, nil
}

func single(rec models.Record, err error) ([]models.Record, error) {
	if err != nil {
		return nil, err
	}
	return []models.Record{rec}, nil
}

// Query selects rows from table.
func (r *Router) Query(ctx context.Context, table string, q models.Query) ([]models.Record, error) {
	res, err := r.Execute(ctx, models.QueryOp(table, q))
	return res.Records, err
}

// Insert creates records in table.
func (r *Router) Insert(ctx context.Context, table string, records ...models.Record) ([]models.Record, error) {
	res, err := r.Execute(ctx, models.InsertOp(table, records...))
	return res.Records, err
}

// Update patches the record with id.
func (r *Router) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error) {
	res, err := r.Execute(ctx, models.UpdateOp(table, id, patch))
	return first(res, err)
}

// Delete removes the record with id.
func (r *Router) Delete(ctx context.Context, table, id string) error {
	_, err := r.Execute(ctx, models.DeleteOp(table, id))
	return err
}

// Upsert inserts or replaces record.
func (r *Router) Upsert(ctx context.Context, table string, record models.Record) (models.Record, error) {
	res, err := r.Execute(ctx, models.UpsertOp(table, record))
	return first(res, err)
}

func first(res Result, err error) (models.Record, error) {
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	return res.Records[0], nil
}

