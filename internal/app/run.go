package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/server"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

const logUploadTimeout = 60 * time.Second

func (a *App) run(ctx context.Context, deps *Dependencies, lease domain.Lease) error {
	engine := strategy.NewEngine(
		strategy.ParamsFromConfig(a.cfg.Bot),
		deps.Quotes,
		deps.Executor,
		deps.Status,
		deps.Events,
		a.logger,
	)
	if deps.StateStore != nil {
		engine.SetStateStore(deps.StateStore)
	}
	if deps.Archiver != nil {
		engine.SetArchiver(deps.Archiver)
	}
	if deps.Notifier.Enabled() {
		engine.SetNotifier(deps.Notifier)
	}
	if err := engine.Restore(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:   a.cfg.Server.Port,
			APIKey: a.cfg.Server.APIKey,
		}, engine, a.logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if lease != nil {
		g.Go(func() error {
			if err := lease.KeepAlive(gctx); err != nil {
				return fmt.Errorf("app: instance lock: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	a.uploadLog(deps)
	return err
}

// uploadLog ships the event log to object storage on shutdown.
func (a *App) uploadLog(deps *Dependencies) {
	if deps.Archiver == nil || deps.Events.Path() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), logUploadTimeout)
	defer cancel()
	key, err := deps.Archiver.ArchiveLog(ctx, deps.Events.Path())
	if err != nil {
		a.logger.Warn("event log upload failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("event log uploaded", slog.String("key", key))
}
