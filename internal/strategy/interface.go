package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// QuoteSource returns the best bid/ask for one instrument. Failures are
// reported through Quote.OK, never as an error.
type QuoteSource interface {
	BestPrice(ctx context.Context, tokenID string) domain.Quote
}

// OrderExecutor submits a single order.
type OrderExecutor interface {
	Execute(ctx context.Context, order domain.OrderIntent) domain.OrderResult
}

// StatusWriter persists the status snapshot.
type StatusWriter interface {
	Write(ctx context.Context, snap domain.StatusSnapshot) error
}

// Notifier forwards operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TradeArchiver ships closed trades to long-term storage.
type TradeArchiver interface {
	ArchiveTrade(ctx context.Context, t domain.Trade) error
}

// Params holds the engine's trading rules.
type Params struct {
	PairKey            string
	UpTokenID          string
	DownTokenID        string
	StartingCapital    float64
	MaxOrderSize       float64
	EntryThreshold     float64
	TakeProfitPct      float64
	EntryWindowMinutes int
	PollInterval       time.Duration
	MaxErrStreak       int
	DryRun             bool
}

// ParamsFromConfig extracts engine parameters from the bot configuration.
func ParamsFromConfig(b config.BotConfig) Params {
	return Params{
		PairKey:            b.PairKey(),
		UpTokenID:          b.UpTokenID,
		DownTokenID:        b.DownTokenID,
		StartingCapital:    b.StartingCapital,
		MaxOrderSize:       b.MaxOrderSize,
		EntryThreshold:     b.EntryThreshold,
		TakeProfitPct:      b.TakeProfitPct,
		EntryWindowMinutes: b.EntryWindowMinutes,
		PollInterval:       b.PollInterval(),
		MaxErrStreak:       b.MaxErrStreak,
		DryRun:             b.DryRun,
	}
}
