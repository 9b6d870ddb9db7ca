package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// StateStore implements domain.StateStore using PostgreSQL.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Load returns the saved capital, open position and trade history for
// pairKey. found is false when nothing has been saved yet.
func (s *StateStore) Load(ctx context.Context, pairKey string) (domain.PersistedState, bool, error) {
	var (
		st      domain.PersistedState
		posJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT capital, position FROM engine_state WHERE pair_key = $1`, pairKey,
	).Scan(&st.Capital, &posJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PersistedState{}, false, nil
		}
		return domain.PersistedState{}, false, fmt.Errorf("postgres: load state %s: %w", pairKey, err)
	}
	st.Position, err = decodePosition(posJSON)
	if err != nil {
		return domain.PersistedState{}, false, err
	}

	trades, err := s.ListTrades(ctx, pairKey)
	if err != nil {
		return domain.PersistedState{}, false, err
	}
	st.Trades = trades
	return st, true, nil
}

// SaveState upserts capital and position for pairKey.
func (s *StateStore) SaveState(ctx context.Context, pairKey string, capital float64, pos *domain.Position) error {
	posJSON, err := encodePosition(pos)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO engine_state (pair_key, capital, position, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (pair_key) DO UPDATE SET
			capital = EXCLUDED.capital,
			position = EXCLUDED.position,
			updated_at = NOW()`,
		pairKey, capital, posJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: save state %s: %w", pairKey, err)
	}
	return nil
}

// AppendTrade inserts a closed trade. Re-inserting the same ID is a no-op.
func (s *StateStore) AppendTrade(ctx context.Context, pairKey string, t domain.Trade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (id, pair_key, side, token_id, entry_price, exit_price, size_usdc, qty, pnl, pnl_pct, order_id, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, pairKey, string(t.Side), t.TokenID, t.EntryPrice, t.ExitPrice,
		t.SizeUSDC, t.Qty, t.PnL, t.PnLPct, t.OrderID, t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListTrades returns every trade for pairKey, oldest first.
func (s *StateStore) ListTrades(ctx context.Context, pairKey string) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, side, token_id, entry_price, exit_price, size_usdc, qty, pnl, pnl_pct, order_id, opened_at, closed_at
		FROM trades WHERE pair_key = $1 ORDER BY closed_at, id`,
		pairKey,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", pairKey, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t    domain.Trade
			side string
		)
		if err := rows.Scan(&t.ID, &side, &t.TokenID, &t.EntryPrice, &t.ExitPrice,
			&t.SizeUSDC, &t.Qty, &t.PnL, &t.PnLPct, &t.OrderID, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", pairKey, err)
	}
	return trades, nil
}

func encodePosition(pos *domain.Position) ([]byte, error) {
	if pos == nil {
		return nil, nil
	}
	b, err := json.Marshal(pos)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode position: %w", err)
	}
	return b, nil
}

func decodePosition(b []byte) (*domain.Position, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var pos domain.Position
	if err := json.Unmarshal(b, &pos); err != nil {
		return nil, fmt.Errorf("postgres: decode position: %w", err)
	}
	return &pos, nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
