// Package core wires the data-access layer together and owns its lifecycle.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/bizstore/internal/config"
	"github.com/kilupskalvis/bizstore/internal/fallback"
	"github.com/kilupskalvis/bizstore/internal/localstore"
	"github.com/kilupskalvis/bizstore/internal/persist"
	"github.com/kilupskalvis/bizstore/internal/remote"
	"github.com/kilupskalvis/bizstore/internal/remote/pgstore"
	"github.com/kilupskalvis/bizstore/internal/state"
	"github.com/kilupskalvis/bizstore/internal/storage"
)

// App is the single process-wide instance of the data-access layer. Build it
// once with Open and release it with Close.
type App struct {
	Config  *config.Config
	Medium  storage.Medium
	Persist *persist.Manager
	Local   *localstore.Store
	Remote  remote.Store // nil when offline
	Router  *fallback.Router
	State   *state.Store

	logger      *slog.Logger
	closeRemote func()
}

// Open builds the App described by cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	medium, err := storage.Open(cfg.Storage.Backend, cfg.StoragePath(), int(cfg.Storage.QuotaBytes))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rs, closeRemote, err := openRemote(ctx, cfg, logger)
	if err != nil {
		medium.Close()
		return nil, err
	}

	app := New(cfg, medium, rs, logger)
	app.closeRemote = closeRemote
	return app, nil
}

// New assembles an App around an already opened medium and remote. rs may be
// nil.
func New(cfg *config.Config, medium storage.Medium, rs remote.Store, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	pm := persist.New(medium, logger.With("component", "persist"),
		persist.WithSafetyBackup(cfg.Backup.SafetyBackup))
	local := localstore.New(pm, logger.With("component", "localstore"),
		localstore.WithIDPrefix(cfg.Local.IDPrefix))

	return &App{
		Config:      cfg,
		Medium:      medium,
		Persist:     pm,
		Local:       local,
		Remote:      rs,
		Router:      fallback.New(rs, local, logger.With("component", "fallback")),
		State:       state.New(pm, logger.With("component", "state")),
		logger:      logger,
		closeRemote: func() {},
	}
}

func openRemote(ctx context.Context, cfg *config.Config, logger *slog.Logger) (remote.Store, func(), error) {
	var (
		rs      remote.Store
		closeFn = func() {}
	)

	switch cfg.Remote.Kind {
	case config.RemotePostgREST:
		timeout, err := cfg.RemoteTimeout()
		if err != nil {
			return nil, nil, err
		}
		rs = remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.APIKey, cfg.Remote.AccessToken, timeout)
	case config.RemotePostgres:
		pg, err := pgstore.Connect(ctx, cfg.Remote.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		rs, closeFn = pg, pg.Close
	case config.RemoteNone, "":
		logger.Info("no remote configured, serving from local store")
		return nil, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote kind %q", cfg.Remote.Kind)
	}

	if cfg.Remote.MaxRetries > 0 {
		retry := remote.DefaultRetryConfig()
		retry.MaxRetries = cfg.Remote.MaxRetries
		rs = remote.NewRetryStore(rs, retry, logger.With("component", "remote"))
	}
	return rs, closeFn, nil
}

// RestoreBackup restores backup id and reloads every in-memory cache from
// durable storage. A missing backup changes nothing and reports false.
func (a *App) RestoreBackup(id string) (bool, error) {
	restored, err := a.Persist.RestoreBackup(id)
	if restored {
		a.Local.Reload()
		a.State.Reload()
	}
	return restored, err
}

// Close detaches state subscribers and releases the remote and the medium.
func (a *App) Close() error {
	a.State.Close()
	if a.closeRemote != nil {
		a.closeRemote()
	}
	return a.Medium.Close()
}
