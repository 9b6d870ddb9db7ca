package domain

import "time"

// Trade is an immutable record of a closed position.
type Trade struct {
	ID         string    `json:"id"`
	Side       Side      `json:"side"`
	TokenID    string    `json:"tokenId"`
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice"`
	SizeUSDC   float64   `json:"sizeUsdc"`
	Qty        float64   `json:"qty"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnlPct"`
	OrderID    string    `json:"orderId,omitempty"`
	OpenedAt   time.Time `json:"openedAt"`
	ClosedAt   time.Time `json:"closedAt"`
}
