package strategy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/eventlog"
)

const (
	upID   = "tok-up"
	downID = "tok-down"
)

// --- fakes ---

type fakeQuotes struct {
	mu      sync.Mutex
	quotes  map[string]domain.Quote
	entered chan struct{}
	release chan struct{}
	panics  bool
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{quotes: map[string]domain.Quote{}}
}

func (f *fakeQuotes) set(tokenID string, q domain.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q.TokenID = tokenID
	f.quotes[tokenID] = q
}

func (f *fakeQuotes) BestPrice(_ context.Context, tokenID string) domain.Quote {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics && tokenID == upID {
		var m map[string]int
		m["boom"]++
	}
	q, ok := f.quotes[tokenID]
	if !ok {
		return domain.FailedQuote(tokenID, "no_price")
	}
	return q
}

type fakeExec struct {
	mu     sync.Mutex
	orders []domain.OrderIntent
	result domain.OrderResult
}

func (f *fakeExec) Execute(_ context.Context, o domain.OrderIntent) domain.OrderResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return f.result
}

type fakeStatus struct {
	mu    sync.Mutex
	snaps []domain.StatusSnapshot
	err   error
}

func (f *fakeStatus) Write(_ context.Context, s domain.StatusSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, s)
	return f.err
}

func (f *fakeStatus) last() domain.StatusSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[len(f.snaps)-1]
}

type fakeStore struct {
	saved    savedCall
	trades   []domain.Trade
	loaded   domain.PersistedState
	found    bool
	loadErr  error
	saveErr  error
	saveCall int
}

type savedCall struct {
	pair    string
	capital float64
	pos     *domain.Position
}

func (f *fakeStore) Load(_ context.Context, _ string) (domain.PersistedState, bool, error) {
	return f.loaded, f.found, f.loadErr
}

func (f *fakeStore) SaveState(_ context.Context, pair string, capital float64, pos *domain.Position) error {
	f.saveCall++
	f.saved = savedCall{pair: pair, capital: capital, pos: pos}
	return f.saveErr
}

func (f *fakeStore) AppendTrade(_ context.Context, _ string, t domain.Trade) error {
	f.trades = append(f.trades, t)
	return nil
}

type fakeArchiver struct{ trades []domain.Trade }

func (f *fakeArchiver) ArchiveTrade(_ context.Context, t domain.Trade) error {
	f.trades = append(f.trades, t)
	return nil
}

type fakeNotifier struct{ events []string }

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

// --- harness ---

type harness struct {
	engine *Engine
	quotes *fakeQuotes
	exec   *fakeExec
	status *fakeStatus
	buf    *bytes.Buffer
}

func defaultParams() Params {
	return Params{
		PairKey:            upID + ":" + downID,
		UpTokenID:          upID,
		DownTokenID:        downID,
		StartingCapital:    500,
		MaxOrderSize:       50,
		EntryThreshold:     0.30,
		TakeProfitPct:      0.20,
		EntryWindowMinutes: 20,
		PollInterval:       time.Second,
		DryRun:             true,
	}
}

func newHarness(t *testing.T, p Params) *harness {
	t.Helper()
	h := &harness{
		quotes: newFakeQuotes(),
		exec:   &fakeExec{result: domain.OrderResult{OK: true, OrderID: "ord-1"}},
		status: &fakeStatus{},
		buf:    &bytes.Buffer{},
	}
	events := eventlog.New(h.buf, slog.LevelDebug)
	h.engine = NewEngine(p, h.quotes, h.exec, h.status, events, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	h.at(5)
	return h
}

// at pins the engine clock to the given minute of the hour.
func (h *harness) at(minute int) {
	ts := time.Date(2026, 5, 4, 14, minute, 0, 0, time.UTC)
	h.engine.SetClock(func() time.Time { return ts })
}

func (h *harness) book(tokenID string, ask, bid float64) {
	q := domain.Quote{OK: true}
	if ask > 0 {
		q.Ask, q.HasAsk = ask, true
	}
	if bid > 0 {
		q.Bid, q.HasBid = bid, true
	}
	h.quotes.set(tokenID, q)
}

func (h *harness) records(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(h.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func (h *harness) events(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, r := range h.records(t) {
		names = append(names, r["event"].(string))
	}
	return names
}

func (h *harness) find(t *testing.T, event string) map[string]any {
	t.Helper()
	for _, r := range h.records(t) {
		if r["event"] == event {
			return r
		}
	}
	t.Fatalf("event %s not logged", event)
	return nil
}

// --- entry ---

func Test_OpensCheaperSideBelowThreshold(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.book(upID, 0.28, 0.26)
	h.book(downID, 0.35, 0.33)

	require.True(t, h.engine.Tick(context.Background()))

	st := h.engine.State()
	require.NotNil(t, st.Position)
	assert.Equal(t, domain.SideUp, st.Position.Side)
	assert.Equal(t, upID, st.Position.TokenID)
	assert.Equal(t, 0.28, st.Position.EntryPrice)
	assert.Equal(t, 50.0, st.Position.SizeUSDC)
	assert.InDelta(t, 50/0.28, st.Position.Qty, 1e-12)
	assert.InDelta(t, 450.0, st.Capital, 1e-9)

	require.Len(t, h.exec.orders, 1)
	assert.Equal(t, domain.OrderIntent{
		Action:   domain.OrderActionBuy,
		Side:     domain.SideUp,
		TokenID:  upID,
		Price:    0.28,
		SizeUSDC: 50,
		Reason:   "entry-threshold",
	}, h.exec.orders[0])

	opened := h.find(t, "OPENED")
	assert.Equal(t, "UP", opened["side"])
	assert.Equal(t, 0.28, opened["price"])
	assert.Equal(t, 178.571429, opened["qty"])
	assert.Equal(t, 450.0, opened["capitalLeft"])
	assert.Equal(t, "ord-1", opened["orderId"])

	snap := h.status.last()
	assert.Equal(t, domain.HealthHealthy, snap.Health)
	require.NotNil(t, snap.Position)
	assert.Equal(t, 450.0, snap.Capital)
}

func Test_OpensLowerWhenBothEligible(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.book(upID, 0.25, 0.23)
	h.book(downID, 0.20, 0.18)

	h.engine.Tick(context.Background())

	st := h.engine.State()
	require.NotNil(t, st.Position)
	assert.Equal(t, domain.SideDown, st.Position.Side)
	assert.Equal(t, 0.20, st.Position.EntryPrice)
}

func Test_AskEqualToThresholdOpens(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.book(upID, 0.30, 0.29)
	h.book(downID, 0.72, 0.70)

	h.engine.Tick(context.Background())

	require.NotNil(t, h.engine.State().Position)
}

func Test_NoEntryOutsideWindowIsIdempotent(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.at(20)
	h.book(upID, 0.10, 0.09)
	h.book(downID, 0.90, 0.88)

	for i := 0; i < 3; i++ {
		h.engine.Tick(context.Background())
	}

	st := h.engine.State()
	assert.Nil(t, st.Position)
	assert.Equal(t, 500.0, st.Capital)
	assert.Empty(t, st.Trades)
	assert.Empty(t, h.exec.orders)
	assert.Equal(t, []string{"TICK", "TICK", "TICK"}, h.events(t))

	tick := h.find(t, "TICK")
	assert.Equal(t, false, tick["inWindow"])
	assert.Nil(t, tick["holding"])
}

func Test_NoCapitalSkipsEntry(t *testing.T) {
	p := defaultParams()
	p.StartingCapital = 0
	h := newHarness(t, p)
	h.book(upID, 0.25, 0.24)
	h.book(downID, 0.80, 0.78)

	h.engine.Tick(context.Background())

	assert.Nil(t, h.engine.State().Position)
	assert.Empty(t, h.exec.orders)
	assert.Contains(t, h.events(t), "SKIP_OPEN_NO_CAPITAL")
}

func Test_SizeCappedByCapital(t *testing.T) {
	p := defaultParams()
	p.StartingCapital = 20
	h := newHarness(t, p)
	h.book(upID, 0.25, 0.24)
	h.book(downID, 0.80, 0.78)

	h.engine.Tick(context.Background())

	st := h.engine.State()
	require.NotNil(t, st.Position)
	assert.Equal(t, 20.0, st.Position.SizeUSDC)
	assert.Equal(t, 0.0, st.Capital)
}

func Test_ZeroAskIsRejected(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.quotes.set(upID, domain.Quote{OK: true, Ask: 0, HasAsk: true})
	h.book(downID, 0.80, 0.78)

	h.engine.Tick(context.Background())

	assert.Nil(t, h.engine.State().Position)
	assert.Contains(t, h.events(t), "SKIP_OPEN_BAD_PRICE")
}

func Test_OpenOrderFailureLeavesState(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.exec.result = domain.OrderResult{OK: false, Error: "rejected", Code: 2}
	h.book(upID, 0.28, 0.26)
	h.book(downID, 0.75, 0.70)

	h.engine.Tick(context.Background())

	st := h.engine.State()
	assert.Nil(t, st.Position)
	assert.Equal(t, 500.0, st.Capital)

	rec := h.find(t, "ERR_OPEN_ORDER")
	res := rec["res"].(map[string]any)
	assert.Equal(t, false, res["ok"])
	assert.Equal(t, "rejected", res["error"])
	assert.Equal(t, 2.0, res["code"])
	order := rec["order"].(map[string]any)
	assert.Equal(t, "BUY", order["action"])

	assert.Equal(t, domain.HealthHealthy, h.status.last().Health)

	// next tick re-evaluates from scratch
	h.exec.result = domain.OrderResult{OK: true, OrderID: "ord-2"}
	h.engine.Tick(context.Background())
	require.NotNil(t, h.engine.State().Position)
	assert.Len(t, h.exec.orders, 2)
}

func Test_ThrottleSuppressesEntries(t *testing.T) {
	p := defaultParams()
	p.MaxErrStreak = 1
	h := newHarness(t, p)
	h.book(upID, 0.28, 0.26)
	h.book(downID, 0.75, 0.70)

	h.status.err = errors.New("disk full")
	h.exec.result = domain.OrderResult{OK: false, Error: "rejected"}
	h.engine.Tick(context.Background())
	require.Equal(t, 1, h.engine.State().ErrStreak)

	h.status.err = nil
	h.exec.result = domain.OrderResult{OK: true}
	h.engine.Tick(context.Background())

	assert.Nil(t, h.engine.State().Position)
	assert.Contains(t, h.events(t), "SKIP_OPEN_THROTTLED")
	assert.Equal(t, 0, h.engine.State().ErrStreak)
}

// --- exit ---

func openUp(t *testing.T, h *harness) {
	t.Helper()
	h.book(upID, 0.28, 0.26)
	h.book(downID, 0.75, 0.70)
	h.engine.Tick(context.Background())
	require.NotNil(t, h.engine.State().Position)
}

func Test_ClosesOnTakeProfit(t *testing.T) {
	h := newHarness(t, defaultParams())
	openUp(t, h)

	h.book(upID, 0.36, 0.34)
	h.engine.Tick(context.Background())

	st := h.engine.State()
	assert.Nil(t, st.Position)
	require.Len(t, st.Trades, 1)

	tr := st.Trades[0]
	qty := 50 / 0.28
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, domain.SideUp, tr.Side)
	assert.Equal(t, 0.28, tr.EntryPrice)
	assert.Equal(t, 0.34, tr.ExitPrice)
	assert.InDelta(t, qty*0.34-50, tr.PnL, 1e-9)
	assert.InDelta(t, tr.PnL/50, tr.PnLPct, 1e-12)
	assert.InDelta(t, 450+qty*0.34, st.Capital, 1e-9)

	require.Len(t, h.exec.orders, 2)
	sell := h.exec.orders[1]
	assert.Equal(t, domain.OrderActionSell, sell.Action)
	assert.Equal(t, 0.34, sell.Price)
	assert.Equal(t, 60.71, sell.SizeUSDC)
	assert.Equal(t, "take-profit", sell.Reason)

	closed := h.find(t, "CLOSED")
	assert.Equal(t, "UP", closed["side"])
	assert.Equal(t, 10.71, closed["pnl"])
	assert.Equal(t, "21.43%", closed["pnlPct"])
}

func Test_CloseOnExactTakeProfit(t *testing.T) {
	p := defaultParams()
	p.TakeProfitPct = 0.25
	h := newHarness(t, p)
	h.book(upID, 0.25, 0.24)
	h.book(downID, 0.80, 0.78)
	h.engine.Tick(context.Background())
	require.NotNil(t, h.engine.State().Position)

	h.book(upID, 0.33, 0.3125)
	h.engine.Tick(context.Background())

	assert.Nil(t, h.engine.State().Position)
	assert.Len(t, h.engine.State().Trades, 1)
}

func Test_HoldsBelowTakeProfit(t *testing.T) {
	h := newHarness(t, defaultParams())
	openUp(t, h)

	h.book(upID, 0.34, 0.33)
	h.engine.Tick(context.Background())

	assert.NotNil(t, h.engine.State().Position)
	assert.Len(t, h.exec.orders, 1)
}

func Test_MissingBidSkipsClose(t *testing.T) {
	h := newHarness(t, defaultParams())
	openUp(t, h)

	h.book(upID, 0.40, 0)
	h.engine.Tick(context.Background())

	assert.NotNil(t, h.engine.State().Position)
	rec := h.find(t, "SKIP_CLOSE_NO_BID")
	assert.Equal(t, "UP", rec["side"])
}

func Test_CloseOrderFailureKeepsPosition(t *testing.T) {
	h := newHarness(t, defaultParams())
	openUp(t, h)
	before := h.engine.State()

	h.exec.result = domain.OrderResult{OK: false, Error: "exit status 1", Code: 1}
	h.book(upID, 0.36, 0.34)
	h.engine.Tick(context.Background())

	after := h.engine.State()
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.Capital, after.Capital)
	assert.Empty(t, after.Trades)
	assert.Contains(t, h.events(t), "ERR_CLOSE_ORDER")
}

func Test_ExitIgnoresEntryWindow(t *testing.T) {
	h := newHarness(t, defaultParams())
	openUp(t, h)

	h.at(45)
	h.book(upID, 0.36, 0.34)
	h.engine.Tick(context.Background())

	assert.Nil(t, h.engine.State().Position, "exits are not limited by the entry window")
}

func Test_CapitalInvariantAcrossRoundTrips(t *testing.T) {
	h := newHarness(t, defaultParams())
	ctx := context.Background()

	entries := []float64{0.28, 0.22, 0.30}
	exits := []float64{0.34, 0.30, 0.36}
	for i := range entries {
		h.book(upID, entries[i], entries[i]-0.01)
		h.book(downID, 0.90, 0.88)
		h.engine.Tick(ctx)

		st := h.engine.State()
		require.NotNil(t, st.Position)
		var pnl float64
		for _, tr := range st.Trades {
			pnl += tr.PnL
		}
		assert.InDelta(t, 500+pnl, st.Capital+st.Position.SizeUSDC, 1e-9)

		h.book(upID, exits[i]+0.01, exits[i])
		h.engine.Tick(ctx)
	}

	st := h.engine.State()
	assert.Nil(t, st.Position)
	require.Len(t, st.Trades, 3)
	var pnl float64
	for _, tr := range st.Trades {
		pnl += tr.PnL
		assert.InDelta(t, tr.Qty*tr.ExitPrice-tr.SizeUSDC, tr.PnL, 1e-9)
		assert.InDelta(t, tr.SizeUSDC/tr.EntryPrice, tr.Qty, 1e-9)
	}
	assert.InDelta(t, 500+pnl, st.Capital, 1e-9)

	trades := h.engine.Trades(2)
	require.Len(t, trades, 2)
	assert.Equal(t, st.Trades[2].ID, trades[0].ID)
	assert.Equal(t, st.Trades[1].ID, trades[1].ID)
	assert.Len(t, h.engine.Trades(0), 3)
}

// --- failures ---

func Test_MarketDataFailureSkipsDecisions(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.book(upID, 0.20, 0.18)
	// DOWN quote missing -> no_price

	h.engine.Tick(context.Background())

	st := h.engine.State()
	assert.Nil(t, st.Position)
	assert.Equal(t, 500.0, st.Capital)
	assert.Empty(t, h.exec.orders)
	assert.Equal(t, []string{"WARN_MARKET_DATA"}, h.events(t))

	warn := h.find(t, "WARN_MARKET_DATA")
	down := warn["down"].(map[string]any)
	assert.Equal(t, false, down["ok"])
	assert.Equal(t, "no_price", down["error"])

	snap := h.status.last()
	assert.Equal(t, domain.HealthHealthy, snap.Health)
	assert.Equal(t, "no_price", snap.Note)
}

func Test_MarketDataFailureKeepsOpenPosition(t *testing.T) {
	h := newHarness(t, defaultParams())
	openUp(t, h)
	before := h.engine.State()

	h.quotes.set(upID, domain.FailedQuote(upID, "http_500"))
	h.engine.Tick(context.Background())

	after := h.engine.State()
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.Capital, after.Capital)
}

func Test_StatusFailureCountsAsTickError(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.at(30)
	h.book(upID, 0.50, 0.48)
	h.book(downID, 0.50, 0.48)
	h.status.err = errors.New("read-only fs")
	n := &fakeNotifier{}
	h.engine.SetNotifier(n)

	h.engine.Tick(context.Background())
	h.engine.Tick(context.Background())

	assert.Equal(t, 2, h.engine.State().ErrStreak)
	rec := h.find(t, "ERR_TICK")
	assert.Equal(t, "read-only fs", rec["err"])
	assert.Equal(t, 1.0, rec["errStreak"])

	snap := h.status.last()
	assert.Equal(t, domain.HealthDegraded, snap.Health)
	assert.Equal(t, "read-only fs", snap.LastError)
	assert.Equal(t, 2, snap.ErrStreak)
	assert.Equal(t, []string{"ERR_TICK"}, n.events, "only the first failure of a streak alerts")

	// a degraded engine reports no_price ticks as degraded too
	h.status.err = nil
	h.quotes.set(downID, domain.FailedQuote(downID, "no_price"))
	h.engine.Tick(context.Background())
	assert.Equal(t, domain.HealthDegraded, h.status.last().Health)
	assert.Equal(t, 2, h.engine.State().ErrStreak)

	// and recovery resets the streak
	h.book(downID, 0.50, 0.48)
	h.engine.Tick(context.Background())
	assert.Equal(t, 0, h.engine.State().ErrStreak)
	assert.Equal(t, domain.HealthHealthy, h.status.last().Health)
}

func Test_PanicIsRecovered(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.quotes.panics = true

	assert.NotPanics(t, func() { h.engine.Tick(context.Background()) })

	assert.Equal(t, 1, h.engine.State().ErrStreak)
	rec := h.find(t, "ERR_TICK")
	assert.Contains(t, rec["err"], "tick panic")
}

func Test_OverlappingTickIsSkipped(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.book(upID, 0.50, 0.48)
	h.book(downID, 0.50, 0.48)
	h.quotes.entered = make(chan struct{}, 2)
	h.quotes.release = make(chan struct{})

	done := make(chan bool)
	go func() { done <- h.engine.Tick(context.Background()) }()

	<-h.quotes.entered
	assert.False(t, h.engine.Tick(context.Background()))
	close(h.quotes.release)
	assert.True(t, <-done)

	assert.Equal(t, []string{"TICK_SKIPPED", "TICK"}, h.events(t))
}

// --- persistence ---

func Test_PersistsTransitions(t *testing.T) {
	h := newHarness(t, defaultParams())
	store := &fakeStore{}
	arch := &fakeArchiver{}
	n := &fakeNotifier{}
	h.engine.SetStateStore(store)
	h.engine.SetArchiver(arch)
	h.engine.SetNotifier(n)

	openUp(t, h)
	assert.Equal(t, 1, store.saveCall)
	assert.Equal(t, defaultParams().PairKey, store.saved.pair)
	require.NotNil(t, store.saved.pos)
	assert.InDelta(t, 450.0, store.saved.capital, 1e-9)

	h.book(upID, 0.36, 0.34)
	h.engine.Tick(context.Background())

	assert.Equal(t, 2, store.saveCall)
	assert.Nil(t, store.saved.pos)
	require.Len(t, store.trades, 1)
	require.Len(t, arch.trades, 1)
	assert.Equal(t, store.trades[0].ID, arch.trades[0].ID)
	assert.Equal(t, []string{"OPENED", "CLOSED"}, n.events)
}

func Test_PersistFailureIsLoggedNotFatal(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.engine.SetStateStore(&fakeStore{saveErr: errors.New("conn refused")})

	openUp(t, h)

	assert.Equal(t, 0, h.engine.State().ErrStreak)
	rec := h.find(t, "ERR_PERSIST")
	assert.Equal(t, "save_state", rec["op"])
}

func Test_Restore(t *testing.T) {
	pos := &domain.Position{Side: domain.SideDown, TokenID: downID, EntryPrice: 0.2, SizeUSDC: 50, Qty: 250}
	store := &fakeStore{
		found: true,
		loaded: domain.PersistedState{
			Capital:  470,
			Position: pos,
			Trades:   []domain.Trade{{ID: "t1", PnL: 20}},
		},
	}
	h := newHarness(t, defaultParams())
	h.engine.SetStateStore(store)

	require.NoError(t, h.engine.Restore(context.Background()))

	st := h.engine.State()
	assert.Equal(t, 470.0, st.Capital)
	assert.Equal(t, pos, st.Position)
	assert.Len(t, st.Trades, 1)
	rec := h.find(t, "STATE_RESTORED")
	assert.Equal(t, 1.0, rec["trades"])
}

func Test_StatusBeforeFirstWrite(t *testing.T) {
	h := newHarness(t, defaultParams())

	snap := h.engine.Status()
	assert.Equal(t, domain.HealthStarted, snap.Health)
	assert.Equal(t, 500.0, snap.Capital)
	assert.False(t, snap.TS.IsZero())
	assert.Empty(t, h.status.snaps)

	h.engine.SetStateStore(&fakeStore{found: true, loaded: domain.PersistedState{Capital: 470}})
	require.NoError(t, h.engine.Restore(context.Background()))
	assert.Equal(t, 470.0, h.engine.Status().Capital)
	assert.Equal(t, domain.HealthStarted, h.engine.Status().Health)
}

func Test_TickRecordCarriesWallClock(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.book(upID, 0.50, 0.45)
	h.book(downID, 0.55, 0.50)

	h.engine.Tick(context.Background())

	assert.NotContains(t, h.events(t), "ERR_TICK")
	rec := h.find(t, "TICK")
	assert.Equal(t, "2026-05-04T14:05:00Z", rec["time"])
	assert.Equal(t, true, rec["inWindow"])
	assert.Equal(t, domain.HealthHealthy, h.engine.Status().Health)
}

func Test_RestoreWithoutSavedState(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.engine.SetStateStore(&fakeStore{})

	require.NoError(t, h.engine.Restore(context.Background()))
	assert.Equal(t, 500.0, h.engine.State().Capital)
	assert.Empty(t, h.events(t))
}

func Test_RestoreError(t *testing.T) {
	h := newHarness(t, defaultParams())
	h.engine.SetStateStore(&fakeStore{loadErr: errors.New("timeout")})

	assert.Error(t, h.engine.Restore(context.Background()))
}

// --- scheduling ---

func Test_RunTicksUntilCancelled(t *testing.T) {
	p := defaultParams()
	p.PollInterval = 10 * time.Millisecond
	h := newHarness(t, p)
	h.at(45)
	h.book(upID, 0.50, 0.48)
	h.book(downID, 0.50, 0.48)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		h.status.mu.Lock()
		defer h.status.mu.Unlock()
		return len(h.status.snaps) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	h.status.mu.Lock()
	first := h.status.snaps[0]
	h.status.mu.Unlock()
	assert.Equal(t, domain.HealthStarted, first.Health)

	events := h.events(t)
	assert.Equal(t, "BOT_STOP", events[len(events)-1])
}
