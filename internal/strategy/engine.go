// Package strategy holds the decision engine: one tick reads both sides of the
// pair, applies the entry and take-profit rules, and drives the executor. All
// trading state is owned by the engine and mutated only inside a tick.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/eventlog"
	"github.com/alanyoungcy/updownbot/internal/executor"
)

const sideEffectTimeout = 10 * time.Second

// State is the engine's trading state.
type State struct {
	Capital   float64
	Position  *domain.Position
	Trades    []domain.Trade
	ErrStreak int
}

// Engine runs the tick procedure for a single UP/DOWN pair.
type Engine struct {
	params Params
	quotes QuoteSource
	exec   OrderExecutor
	status StatusWriter
	events *eventlog.Log
	logger *slog.Logger

	store    domain.StateStore
	archiver TradeArchiver
	notifier Notifier
	now      func() time.Time
	newID    func() string

	inFlight atomic.Bool
	state    State

	// published copies for concurrent readers
	mu       sync.RWMutex
	snapshot domain.StatusSnapshot
	view     State
}

// NewEngine creates an Engine starting with p.StartingCapital and no position.
func NewEngine(p Params, quotes QuoteSource, exec OrderExecutor, status StatusWriter, events *eventlog.Log, logger *slog.Logger) *Engine {
	e := &Engine{
		params: p,
		quotes: quotes,
		exec:   exec,
		status: status,
		events: events,
		logger: logger.With(slog.String("component", "engine")),
		now:    time.Now,
		newID:  uuid.NewString,
		state:  State{Capital: p.StartingCapital},
	}
	e.publish(e.snapshotOf(domain.HealthStarted, "", ""))
	return e
}

// SetStateStore enables durable persistence of capital, position and trades.
func (e *Engine) SetStateStore(s domain.StateStore) { e.store = s }

// SetArchiver enables archiving of closed trades.
func (e *Engine) SetArchiver(a TradeArchiver) { e.archiver = a }

// SetNotifier enables operator alerts.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetClock overrides the wall clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Restore loads persisted state, if a store is configured and holds any.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	saved, found, err := e.store.Load(ctx, e.params.PairKey)
	if err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}
	if !found {
		return nil
	}
	e.state.Capital = saved.Capital
	e.state.Position = saved.Position
	e.state.Trades = saved.Trades
	e.events.Info("STATE_RESTORED",
		slog.Float64("capital", domain.Round(e.state.Capital, 2)),
		slog.Any("holding", e.state.Position),
		slog.Int("trades", len(e.state.Trades)),
	)
	e.publish(e.snapshotOf(domain.HealthStarted, "", ""))
	return nil
}

// Run writes the initial status, ticks immediately and then on every poll
// interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.writeStatus(ctx, domain.HealthStarted, "", ""); err != nil {
		return fmt.Errorf("engine: initial status: %w", err)
	}

	e.Tick(ctx)

	ticker := time.NewTicker(e.params.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.events.Info("BOT_STOP",
				slog.Float64("capital", domain.Round(e.state.Capital, 2)),
				slog.Any("holding", e.state.Position),
				slog.Int("trades", len(e.state.Trades)),
			)
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one tick unless another is still in progress, in which case it
// logs TICK_SKIPPED and returns false.
func (e *Engine) Tick(ctx context.Context) bool {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.events.Info("TICK_SKIPPED")
		return false
	}
	defer e.inFlight.Store(false)

	err := e.guardedTick(ctx)
	if err == nil {
		return true
	}

	e.state.ErrStreak++
	e.events.Error("ERR_TICK",
		slog.String("err", err.Error()),
		slog.Int("errStreak", e.state.ErrStreak),
	)
	if werr := e.writeStatus(ctx, domain.HealthDegraded, "", err.Error()); werr != nil {
		e.logger.Error("status write failed", slog.String("error", werr.Error()))
	}
	if e.state.ErrStreak == 1 {
		e.notify(ctx, "ERR_TICK", "Bot degraded", err.Error())
	}
	return true
}

func (e *Engine) guardedTick(ctx context.Context) (err error) {
	defer recoverInto(&err)
	return e.tick(ctx)
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("tick panic: %v", r)
	}
}

func (e *Engine) tick(ctx context.Context) error {
	now := e.now()
	inWindow := InWindow(now, e.params.EntryWindowMinutes)

	up, down, err := e.fetchPair(ctx)
	if err != nil {
		return err
	}
	if !up.OK || !down.OK {
		e.events.Warn("WARN_MARKET_DATA", slog.Any("up", up), slog.Any("down", down))
		health := domain.HealthHealthy
		if e.state.ErrStreak > 0 {
			health = domain.HealthDegraded
		}
		return e.writeStatus(ctx, health, "no_price", "")
	}

	e.events.Info("TICK",
		slog.String("time", now.UTC().Format(time.RFC3339Nano)),
		slog.Bool("inWindow", inWindow),
		slog.Any("upAsk", up.AskOrNil()),
		slog.Any("upBid", up.BidOrNil()),
		slog.Any("downAsk", down.AskOrNil()),
		slog.Any("downBid", down.BidOrNil()),
		slog.Float64("capital", domain.Round(e.state.Capital, 2)),
		slog.Any("holding", e.state.Position),
	)

	if e.state.Position == nil && inWindow {
		if pick, ok := PickEntry(up, down, e.params.UpTokenID, e.params.DownTokenID, e.params.EntryThreshold); ok {
			if e.throttled() {
				e.events.Warn("SKIP_OPEN_THROTTLED",
					slog.String("side", string(pick.Side)),
					slog.Int("errStreak", e.state.ErrStreak),
				)
			} else {
				e.open(ctx, pick, "entry-threshold")
			}
		}
	}

	if pos := e.state.Position; pos != nil {
		q := up
		if pos.Side == domain.SideDown {
			q = down
		}
		if !q.HasBid {
			e.events.Info("SKIP_CLOSE_NO_BID", slog.String("side", string(pos.Side)))
		} else if TakeProfitHit(pos.EntryPrice, q.Bid, e.params.TakeProfitPct) {
			e.close(ctx, q.Bid, "take-profit")
		}
	}

	prev := e.state.ErrStreak
	e.state.ErrStreak = 0
	if err := e.writeStatus(ctx, domain.HealthHealthy, "", ""); err != nil {
		e.state.ErrStreak = prev
		return err
	}
	return nil
}

func (e *Engine) fetchPair(ctx context.Context) (up, down domain.Quote, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverInto(&err)
		up = e.quotes.BestPrice(gctx, e.params.UpTokenID)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverInto(&err)
		down = e.quotes.BestPrice(gctx, e.params.DownTokenID)
		return nil
	})
	err = g.Wait()
	return up, down, err
}

func (e *Engine) throttled() bool {
	return e.params.MaxErrStreak > 0 && e.state.ErrStreak >= e.params.MaxErrStreak
}

func (e *Engine) open(ctx context.Context, c Candidate, reason string) {
	if !validPrice(c.Price) {
		e.events.Warn("SKIP_OPEN_BAD_PRICE",
			slog.String("side", string(c.Side)),
			slog.Float64("price", c.Price),
		)
		return
	}

	size := min(e.params.MaxOrderSize, e.state.Capital)
	if size <= 0 {
		e.events.Warn("SKIP_OPEN_NO_CAPITAL")
		return
	}

	qty := size / c.Price
	order := domain.OrderIntent{
		Action:   domain.OrderActionBuy,
		Side:     c.Side,
		TokenID:  c.TokenID,
		Price:    c.Price,
		SizeUSDC: size,
		Reason:   reason,
	}
	res := e.exec.Execute(ctx, order)
	if !res.OK {
		e.events.Error("ERR_OPEN_ORDER",
			slog.Group("order", executor.OrderAttrs(order)...),
			slog.Group("res", resultAttrs(res)...),
		)
		return
	}

	e.state.Capital -= size
	e.state.Position = &domain.Position{
		Side:       c.Side,
		TokenID:    c.TokenID,
		EntryPrice: c.Price,
		SizeUSDC:   size,
		Qty:        qty,
		OpenedAt:   e.now().UTC(),
	}

	e.events.Info("OPENED",
		slog.String("side", string(c.Side)),
		slog.Float64("price", c.Price),
		slog.Float64("sizeUsdc", size),
		slog.Float64("qty", domain.Round(qty, 6)),
		slog.Float64("capitalLeft", domain.Round(e.state.Capital, 2)),
		slog.Any("orderId", orderID(res)),
	)

	e.persistState(ctx)
	e.notify(ctx, "OPENED", "Position opened",
		fmt.Sprintf("%s @ %v, size %.2f USDC, capital left %.2f", c.Side, c.Price, size, e.state.Capital))
}

func (e *Engine) close(ctx context.Context, price float64, reason string) {
	p := e.state.Position
	if p == nil {
		return
	}
	if !validPrice(price) {
		e.events.Warn("SKIP_CLOSE_BAD_PRICE", slog.Float64("price", price))
		return
	}

	proceeds := p.Qty * price
	pnl := proceeds - p.SizeUSDC
	pnlPct := pnl / p.SizeUSDC

	order := domain.OrderIntent{
		Action:   domain.OrderActionSell,
		Side:     p.Side,
		TokenID:  p.TokenID,
		Price:    price,
		SizeUSDC: domain.Round(proceeds, 2),
		Reason:   reason,
	}
	res := e.exec.Execute(ctx, order)
	if !res.OK {
		e.events.Error("ERR_CLOSE_ORDER",
			slog.Group("order", executor.OrderAttrs(order)...),
			slog.Group("res", resultAttrs(res)...),
		)
		return
	}

	trade := domain.Trade{
		ID:         e.newID(),
		Side:       p.Side,
		TokenID:    p.TokenID,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		SizeUSDC:   p.SizeUSDC,
		Qty:        p.Qty,
		PnL:        pnl,
		PnLPct:     pnlPct,
		OrderID:    res.OrderID,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   e.now().UTC(),
	}
	e.state.Capital += proceeds
	e.state.Trades = append(e.state.Trades, trade)
	e.state.Position = nil

	pctLabel := decimal.NewFromFloat(pnlPct*100).Round(2).String() + "%"
	e.events.Info("CLOSED",
		slog.String("side", string(trade.Side)),
		slog.Float64("exitPrice", price),
		slog.Float64("pnl", domain.Round(pnl, 2)),
		slog.String("pnlPct", pctLabel),
		slog.Float64("capital", domain.Round(e.state.Capital, 2)),
		slog.Any("orderId", orderID(res)),
	)

	if e.store != nil {
		if err := e.store.AppendTrade(ctx, e.params.PairKey, trade); err != nil {
			e.events.Error("ERR_PERSIST", slog.String("op", "append_trade"), slog.String("err", err.Error()))
		}
	}
	e.persistState(ctx)
	if e.archiver != nil {
		actx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		if err := e.archiver.ArchiveTrade(actx, trade); err != nil {
			e.logger.Warn("archive trade failed", slog.String("trade", trade.ID), slog.String("error", err.Error()))
		}
		cancel()
	}
	e.notify(ctx, "CLOSED", "Position closed",
		fmt.Sprintf("%s exit @ %v, pnl %.2f USDC (%s), capital %.2f", trade.Side, price, pnl, pctLabel, e.state.Capital))
}

func (e *Engine) persistState(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveState(ctx, e.params.PairKey, e.state.Capital, e.state.Position); err != nil {
		e.events.Error("ERR_PERSIST", slog.String("op", "save_state"), slog.String("err", err.Error()))
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := e.notifier.Notify(nctx, event, title, message); err != nil {
		e.logger.Warn("notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (e *Engine) writeStatus(ctx context.Context, health domain.Health, note, lastError string) error {
	snap := e.snapshotOf(health, note, lastError)
	e.publish(snap)
	return e.status.Write(ctx, snap)
}

func (e *Engine) snapshotOf(health domain.Health, note, lastError string) domain.StatusSnapshot {
	return domain.StatusSnapshot{
		TS:        e.now().UTC(),
		Health:    health,
		DryRun:    e.params.DryRun,
		Capital:   domain.Round(e.state.Capital, 6),
		ErrStreak: e.state.ErrStreak,
		Position:  copyPosition(e.state.Position),
		Note:      note,
		LastError: lastError,
	}
}

func (e *Engine) publish(snap domain.StatusSnapshot) {
	view := State{
		Capital:   e.state.Capital,
		Position:  copyPosition(e.state.Position),
		Trades:    append([]domain.Trade(nil), e.state.Trades...),
		ErrStreak: e.state.ErrStreak,
	}
	e.mu.Lock()
	e.snapshot = snap
	e.view = view
	e.mu.Unlock()
}

// Status returns the most recently written status snapshot.
func (e *Engine) Status() domain.StatusSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.snapshot
	snap.Position = copyPosition(snap.Position)
	return snap
}

// State returns a copy of the engine state as of the last status write.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return State{
		Capital:   e.view.Capital,
		Position:  copyPosition(e.view.Position),
		Trades:    append([]domain.Trade(nil), e.view.Trades...),
		ErrStreak: e.view.ErrStreak,
	}
}

// Trades returns up to limit closed trades, newest first. A limit <= 0
// returns all of them.
func (e *Engine) Trades(limit int) []domain.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.view.Trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Trade, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.view.Trades[i])
	}
	return out
}

func copyPosition(p *domain.Position) *domain.Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func orderID(res domain.OrderResult) any {
	if res.OrderID == "" {
		return nil
	}
	return res.OrderID
}

func resultAttrs(res domain.OrderResult) []any {
	attrs := []any{slog.Bool("ok", res.OK)}
	if res.OrderID != "" {
		attrs = append(attrs, slog.String("orderId", res.OrderID))
	}
	if res.Error != "" {
		attrs = append(attrs, slog.String("error", res.Error))
	}
	if res.Code != 0 {
		attrs = append(attrs, slog.Int("code", res.Code))
	}
	if res.Raw != "" {
		attrs = append(attrs, slog.String("raw", res.Raw))
	}
	return attrs
}
