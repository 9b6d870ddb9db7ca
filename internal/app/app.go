// Package app wires the bot's dependencies from configuration and runs the
// engine, the optional HTTP API and the instance-lock refresher together
// until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, takes the instance lock when Redis is
// configured, and blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	deps.Events.Info("BOT_START",
		slog.Any("cfg", a.cfg.Bot),
		slog.String("executor", deps.Executor.Name()),
		slog.Bool("durableState", deps.StateStore != nil),
	)

	var lease domain.Lease
	if deps.LockManager != nil {
		ttl := time.Duration(a.cfg.Redis.LockTTLSec) * time.Second
		lease, err = deps.LockManager.Acquire(ctx, a.cfg.Bot.PairKey(), ttl)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another instance is trading this pair: %w", err)
			}
			return fmt.Errorf("app: acquire lock: %w", err)
		}
		a.closers = append(a.closers, lease.Release)
	}

	return a.run(ctx, deps, lease)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
