package strategy

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Candidate is a side eligible for entry.
type Candidate struct {
	Side    domain.Side
	TokenID string
	Price   float64
}

// InWindow reports whether entries are allowed at t.
func InWindow(t time.Time, windowMinutes int) bool {
	return t.Minute() < windowMinutes
}

// PickEntry returns the cheaper side whose ask is at or below threshold. UP
// wins ties.
func PickEntry(up, down domain.Quote, upID, downID string, threshold float64) (Candidate, bool) {
	limit := decimal.NewFromFloat(threshold)
	var (
		best  Candidate
		found bool
	)
	consider := func(q domain.Quote, side domain.Side, tokenID string) {
		if !q.HasAsk || !finite(q.Ask) {
			return
		}
		if decimal.NewFromFloat(q.Ask).GreaterThan(limit) {
			return
		}
		if found && q.Ask >= best.Price {
			return
		}
		best, found = Candidate{Side: side, TokenID: tokenID, Price: q.Ask}, true
	}
	consider(up, domain.SideUp, upID)
	consider(down, domain.SideDown, downID)
	return best, found
}

// TakeProfitHit reports whether (bid-entry)/entry >= target, compared in
// decimal so that a bid landing exactly on the target closes.
func TakeProfitHit(entry, bid, target float64) bool {
	if !validPrice(entry) || !validPrice(bid) {
		return false
	}
	e := decimal.NewFromFloat(entry)
	pct := decimal.NewFromFloat(bid).Sub(e).Div(e)
	return pct.GreaterThanOrEqual(decimal.NewFromFloat(target))
}

func finite(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0)
}

func validPrice(p float64) bool {
	return finite(p) && p > 0
}
