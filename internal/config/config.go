// Package config defines the runtime configuration for the updown bot and
// provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from the
// built-in defaults, an optional TOML file, and then environment variables.
type Config struct {
	Bot      BotConfig      `toml:"bot"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// BotConfig holds the trading loop parameters.
type BotConfig struct {
	StartingCapital    float64 `toml:"starting_capital_usdc"`
	MaxOrderSize       float64 `toml:"max_order_size_usdc"`
	EntryThreshold     float64 `toml:"entry_price_threshold"`
	TakeProfitPct      float64 `toml:"take_profit_pct"`
	EntryWindowMinutes int     `toml:"entry_window_minutes"`
	PollIntervalMs     int     `toml:"poll_interval_ms"`
	UpTokenID          string  `toml:"up_token_id"`
	DownTokenID        string  `toml:"down_token_id"`
	ClobBaseURL        string  `toml:"clob_base_url"`
	DryRun             bool    `toml:"dry_run"`
	ExecCmd            string  `toml:"execute_order_cmd"`
	LogDir             string  `toml:"log_dir"`
	LogFile            string  `toml:"log_file"`
	StatusFile         string  `toml:"status_file"`
	FetchTimeoutMs     int     `toml:"fetch_timeout_ms"`
	ExecTimeoutMs      int     `toml:"exec_timeout_ms"`
	// MaxErrStreak suppresses new entries once this many consecutive ticks
	// have failed. Zero disables the throttle.
	MaxErrStreak int `toml:"max_err_streak"`
}

// PostgresConfig enables durable state when DSN is set.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	MaxConns      int    `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig enables the status mirror, event channel and instance lock
// when Addr is set.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	TLSEnabled bool   `toml:"tls_enabled"`
	LockTTLSec int    `toml:"lock_ttl_sec"`
}

// S3Config enables the trade archive when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the read-only HTTP API parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		Bot: BotConfig{
			StartingCapital:    500,
			MaxOrderSize:       50,
			EntryThreshold:     0.30,
			TakeProfitPct:      0.20,
			EntryWindowMinutes: 20,
			PollIntervalMs:     5000,
			ClobBaseURL:        "https://clob.polymarket.com",
			DryRun:             true,
			LogDir:             "logs",
			LogFile:            "manual_bot.log",
			StatusFile:         "manual_status.json",
			FetchTimeoutMs:     4000,
			ExecTimeoutMs:      30000,
		},
		Postgres: PostgresConfig{
			MaxConns:      4,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			LockTTLSec: 30,
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
			Prefix:         "updownbot",
		},
		Notify: NotifyConfig{
			Events: []string{"OPENED", "CLOSED", "ERR_TICK"},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		LogLevel: "info",
	}
}

// PollInterval returns the tick period, never shorter than one second.
func (b BotConfig) PollInterval() time.Duration {
	return time.Duration(max(1000, b.PollIntervalMs)) * time.Millisecond
}

// FetchTimeout bounds a single order-book request.
func (b BotConfig) FetchTimeout() time.Duration {
	return time.Duration(b.FetchTimeoutMs) * time.Millisecond
}

// ExecTimeout bounds a single executor subprocess run.
func (b BotConfig) ExecTimeout() time.Duration {
	return time.Duration(b.ExecTimeoutMs) * time.Millisecond
}

// LogPath is the append-only event log location.
func (b BotConfig) LogPath() string { return resolve(b.LogDir, b.LogFile) }

// StatusPath is the atomically replaced status snapshot location.
func (b BotConfig) StatusPath() string { return resolve(b.LogDir, b.StatusFile) }

// PairKey identifies the traded pair in shared stores.
func (b BotConfig) PairKey() string {
	return b.UpTokenID + ":" + b.DownTokenID
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// LogValue implements slog.LogValuer. Token identifiers are masked.
func (b BotConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("startingCapital", b.StartingCapital),
		slog.Float64("maxOrderSize", b.MaxOrderSize),
		slog.Float64("entryThreshold", b.EntryThreshold),
		slog.Float64("takeProfitPct", b.TakeProfitPct),
		slog.Int("entryWindowMinutes", b.EntryWindowMinutes),
		slog.Int64("pollMs", b.PollInterval().Milliseconds()),
		slog.String("upTokenId", Mask(b.UpTokenID)),
		slog.String("downTokenId", Mask(b.DownTokenID)),
		slog.String("clobBase", b.ClobBaseURL),
		slog.Bool("dryRun", b.DryRun),
		slog.String("execCmd", b.ExecCmd),
		slog.String("logFile", b.LogPath()),
		slog.String("statusFile", b.StatusPath()),
	)
}

// Mask hides all but the first and last four characters of an identifier.
func Mask(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for missing or out-of-range values and returns a
// combined error describing every problem found. Missing token identifiers
// match domain.ErrMissingConfig under errors.Is.
//
// An empty execute_order_cmd with dry_run disabled is deliberately accepted
// here; it fails the first live order instead.
func (c *Config) Validate() error {
	var errs []error
	b := c.Bot

	if b.UpTokenID == "" {
		errs = append(errs, fmt.Errorf("%w: UP_TOKEN_ID", domain.ErrMissingConfig))
	}
	if b.DownTokenID == "" {
		errs = append(errs, fmt.Errorf("%w: DOWN_TOKEN_ID", domain.ErrMissingConfig))
	}
	if !finite(b.StartingCapital) || b.StartingCapital < 0 {
		errs = append(errs, fmt.Errorf("bot: starting capital must be >= 0, got %v", b.StartingCapital))
	}
	if !finite(b.MaxOrderSize) || b.MaxOrderSize <= 0 {
		errs = append(errs, fmt.Errorf("bot: max order size must be > 0, got %v", b.MaxOrderSize))
	}
	if !finite(b.EntryThreshold) || b.EntryThreshold <= 0 || b.EntryThreshold > 1 {
		errs = append(errs, fmt.Errorf("bot: entry price threshold must be in (0,1], got %v", b.EntryThreshold))
	}
	if !finite(b.TakeProfitPct) || b.TakeProfitPct < 0 {
		errs = append(errs, fmt.Errorf("bot: take profit pct must be >= 0, got %v", b.TakeProfitPct))
	}
	if b.EntryWindowMinutes < 0 || b.EntryWindowMinutes >= 60 {
		errs = append(errs, fmt.Errorf("bot: entry window minutes must be in [0,60), got %d", b.EntryWindowMinutes))
	}
	if strings.TrimSpace(b.ClobBaseURL) == "" {
		errs = append(errs, errors.New("bot: clob base url must not be empty"))
	}
	if b.FetchTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("bot: fetch timeout must be > 0, got %d", b.FetchTimeoutMs))
	}
	if b.ExecTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("bot: exec timeout must be > 0, got %d", b.ExecTimeoutMs))
	}
	if b.MaxErrStreak < 0 {
		errs = append(errs, fmt.Errorf("bot: max err streak must be >= 0, got %d", b.MaxErrStreak))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Postgres.DSN != "" && c.Postgres.MaxConns < 1 {
		errs = append(errs, errors.New("postgres: max_conns must be >= 1"))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTLSec < 3 {
		errs = append(errs, fmt.Errorf("redis: lock_ttl_sec must be >= 3, got %d", c.Redis.LockTTLSec))
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, errors.New("s3: region must not be empty when bucket is set"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
