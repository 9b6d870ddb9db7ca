package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/eventlog"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/notify"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/status"
	"github.com/alanyoungcy/updownbot/internal/store/postgres"
)

// Dependencies bundles everything the engine and its companions need. The
// optional integrations are nil when not configured.
type Dependencies struct {
	Events   *eventlog.Log
	Quotes   *polymarket.BookClient
	Executor executor.Executor
	Status   *status.Writer

	StateStore  domain.StateStore
	LockManager domain.LockManager
	Archiver    *s3blob.Archiver
	Notifier    *notify.Notifier
}

// Wire constructs the dependencies from cfg and returns them with a cleanup
// function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	events, err := eventlog.Open(cfg.Bot.LogPath(), os.Stdout, slog.LevelInfo)
	if err != nil {
		return fail(fmt.Errorf("wire: event log: %w", err))
	}
	closers = append(closers, func() { _ = events.Close() })

	deps := &Dependencies{
		Events:   events,
		Quotes:   polymarket.NewBookClient(cfg.Bot.ClobBaseURL, cfg.Bot.FetchTimeout()),
		Executor: executor.New(cfg.Bot.DryRun, cfg.Bot.ExecCmd, cfg.Bot.ExecTimeout(), events, logger),
	}
	var senders []notify.Sender
	var mirrors []status.Publisher

	// --- PostgreSQL ---
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.StateStore = postgres.NewStateStore(pg.Pool())
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		rc, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		mirrors = append(mirrors, redis.NewStatusMirror(rc, cfg.Bot.PairKey()))
		senders = append(senders, redis.NewEventBus(rc))
		deps.LockManager = redis.NewLockManager(rc)
	}

	// --- S3 ---
	if cfg.S3.Bucket != "" {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := sc.Health(ctx); err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(sc), cfg.S3.Prefix)
	}

	// --- Notifications ---
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, "updownbot", logger)

	deps.Status = status.NewWriter(status.NewFileWriter(cfg.Bot.StatusPath()), logger, mirrors...)

	return deps, cleanup, nil
}

// NewRedisClient connects to the Redis instance described by rc.
func NewRedisClient(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	return redis.New(ctx, redis.ClientConfig{
		Addr:       rc.Addr,
		Password:   rc.Password,
		DB:         rc.DB,
		TLSEnabled: rc.TLSEnabled,
	})
}
