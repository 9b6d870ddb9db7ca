package domain

import (
	"log/slog"
	"time"
)

// Side names one of the two tradable outcomes of a binary market.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Position is the single open holding. Qty is always SizeUSDC / EntryPrice.
type Position struct {
	Side       Side      `json:"side"`
	TokenID    string    `json:"tokenId"`
	EntryPrice float64   `json:"entryPrice"`
	SizeUSDC   float64   `json:"sizeUsdc"`
	Qty        float64   `json:"qty"`
	OpenedAt   time.Time `json:"openedAt"`
}

// LogValue implements slog.LogValuer with the compact "holding" shape.
func (p *Position) LogValue() slog.Value {
	if p == nil {
		return slog.AnyValue(nil)
	}
	return slog.GroupValue(
		slog.String("side", string(p.Side)),
		slog.Float64("entryPrice", p.EntryPrice),
		slog.Float64("qty", Round(p.Qty, 6)),
	)
}
