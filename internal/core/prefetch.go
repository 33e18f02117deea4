package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/kilupskalvis/bizstore/internal/fallback"
	"github.com/kilupskalvis/bizstore/internal/models"
	"github.com/kilupskalvis/bizstore/internal/persist"
)

const prefetchWorkers = 4

// PrefetchResult reports what Prefetch did for one table.
type PrefetchResult struct {
	Table  string
	Rows   int
	Source fallback.Source
	Cached bool
	Err    error
}

// Prefetch reads each table through the router concurrently and caches
// remote answers in the table's offline slot. Answers served by the local
// store are not cached; they are durable already.
func (a *App) Prefetch(ctx context.Context, tables ...string) ([]PrefetchResult, error) {
	results := make([]PrefetchResult, len(tables))
	if len(tables) == 0 {
		return results, nil
	}

	workers := prefetchWorkers
	if workers > len(tables) {
		workers = len(tables)
	}

	var mu sync.Mutex
	var errs []error
	p := pool.New().WithMaxGoroutines(workers)
	for i, table := range tables {
		p.Go(func() {
			res := a.prefetchTable(ctx, table)
			results[i] = res
			if res.Err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("prefetch %s: %w", table, res.Err))
				mu.Unlock()
			}
		})
	}
	p.Wait()

	return results, errors.Join(errs...)
}

func (a *App) prefetchTable(ctx context.Context, table string) PrefetchResult {
	res := PrefetchResult{Table: table}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	out, err := a.Router.Execute(ctx, models.QueryOp(table, models.Query{}))
	if err != nil {
		res.Err = err
		return res
	}
	res.Rows = len(out.Records)
	res.Source = out.Source

	if out.Source == fallback.SourceRemote {
		res.Cached = a.Persist.Save(persist.OfflineKey(table), out.Records)
		if !res.Cached {
			a.logger.Warn("offline cache not written", "table", table)
		}
	}
	return res
}

// Offline returns the cached remote rows of table.
func (a *App) Offline(table string) ([]models.Record, bool) {
	var rows []models.Record
	if !a.Persist.Load(persist.OfflineKey(table), &rows) {
		return []models.Record{}, false
	}
	if rows == nil {
		rows = []models.Record{}
	}
	return rows, true
}
