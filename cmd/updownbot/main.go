// Command updownbot runs the UP/DOWN pair trading loop and inspects its
// status.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/updownbot/internal/app"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envPath    string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "updownbot",
		Short:         "Binary-pair (UP/DOWN) position bot for CLOB order books",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.toml", "TOML configuration file (optional)")
	root.PersistentFlags().StringVar(&flags.envPath, "env", ".env", "dotenv file (optional, never overrides the environment)")

	root.AddCommand(newRunCmd(&flags))
	root.AddCommand(newStatusCmd(&flags))
	root.AddCommand(newWatchCmd(&flags))
	return root
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the trading loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath, flags.envPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			slog.SetDefault(logger)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application := app.New(cfg, logger)
			defer application.Close()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("updownbot stopped")
			return nil
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var (
		file      string
		fromRedis bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the latest status snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var snap domain.StatusSnapshot
			switch {
			case file != "":
				s, err := status.ReadFile(file)
				if err != nil {
					return err
				}
				snap = s
			default:
				cfg, err := config.Load(flags.configPath, flags.envPath)
				if err != nil {
					return err
				}
				if fromRedis {
					snap, err = readRedisStatus(cmd.Context(), cfg)
				} else {
					snap, err = status.ReadFile(cfg.Bot.StatusPath())
				}
				if err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "status file to read (defaults to the configured path)")
	cmd.Flags().BoolVar(&fromRedis, "redis", false, "read the snapshot mirrored to Redis instead of the file")
	return cmd
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream status updates and alerts published to Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath, flags.envPath)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return errors.New("watch requires REDIS_ADDR")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rc, err := app.NewRedisClient(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer rc.Close()

			msgs, err := redis.NewEventBus(rc).Subscribe(ctx, channel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for msg := range msgs {
				fmt.Fprintln(out, string(msg))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", redis.EventsChannel, "channel or glob pattern to subscribe to (e.g. updownbot:*)")
	return cmd
}

func readRedisStatus(ctx context.Context, cfg *config.Config) (domain.StatusSnapshot, error) {
	if cfg.Redis.Addr == "" {
		return domain.StatusSnapshot{}, errors.New("--redis requires REDIS_ADDR")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rc, err := app.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	defer rc.Close()
	return redis.NewStatusMirror(rc, cfg.Bot.PairKey()).GetStatus(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
