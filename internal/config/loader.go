package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds a Config from the built-in defaults, the TOML file at path (if
// it exists), the dotenv file at envFile (if it exists) and finally the
// process environment. Variables already present in the environment are never
// replaced by the dotenv file. The returned Config has NOT been validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the well-known environment variables and
// overwrites the corresponding Config fields when a variable is set to a
// non-blank, parsable value.
func applyEnvOverrides(cfg *Config) {
	// ── Bot ──
	setFloat64(&cfg.Bot.StartingCapital, "STARTING_CAPITAL_USDC")
	setFloat64(&cfg.Bot.MaxOrderSize, "MAX_ORDER_SIZE_USDC")
	setFloat64(&cfg.Bot.EntryThreshold, "ENTRY_PRICE_THRESHOLD")
	setFloat64(&cfg.Bot.TakeProfitPct, "TAKE_PROFIT_PCT")
	setIntFloor(&cfg.Bot.EntryWindowMinutes, "ENTRY_WINDOW_MINUTES")
	setIntFloor(&cfg.Bot.PollIntervalMs, "POLL_INTERVAL_MS")
	setStr(&cfg.Bot.UpTokenID, "UP_TOKEN_ID")
	setStr(&cfg.Bot.DownTokenID, "DOWN_TOKEN_ID")
	setStr(&cfg.Bot.ClobBaseURL, "CLOB_BASE_URL")
	setDryRun(&cfg.Bot.DryRun, "DRY_RUN")
	setStr(&cfg.Bot.ExecCmd, "EXECUTE_ORDER_CMD")
	cfg.Bot.ExecCmd = strings.TrimSpace(cfg.Bot.ExecCmd)
	setStr(&cfg.Bot.LogDir, "LOG_DIR")
	setStr(&cfg.Bot.LogFile, "LOG_FILE")
	setStr(&cfg.Bot.StatusFile, "STATUS_FILE")
	setIntFloor(&cfg.Bot.FetchTimeoutMs, "FETCH_TIMEOUT_MS")
	setIntFloor(&cfg.Bot.ExecTimeoutMs, "EXEC_TIMEOUT_MS")
	setIntFloor(&cfg.Bot.MaxErrStreak, "MAX_ERR_STREAK")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setIntFloor(&cfg.Postgres.MaxConns, "DATABASE_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setIntFloor(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setIntFloor(&cfg.Redis.LockTTLSec, "REDIS_LOCK_TTL_SEC")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setIntFloor(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")

	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-blank; unparsable values keep the default.
// ---------------------------------------------------------------------------

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setFloat64(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && finite(f) {
			*dst = f
		}
	}
}

// setIntFloor accepts fractional input ("20.9") and floors it.
func setIntFloor(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && finite(f) {
			*dst = int(math.Floor(f))
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDryRun only turns dry-run off for the literal "false"; anything else
// keeps the safe mode on.
func setDryRun(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		*dst = !strings.EqualFold(v, "false")
	}
}

func setStringSlice(dst *[]string, key string) {
	if v, ok := lookup(key); ok {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
