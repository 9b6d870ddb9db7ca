package domain

import (
	"log/slog"
	"time"
)

// Book is a price-only view of one instrument's order book. Asks are sorted
// ascending and bids descending, so index 0 is always the best level.
type Book struct {
	TokenID   string
	Asks      []float64
	Bids      []float64
	Timestamp time.Time
}

// Quote is the tagged best-price result for one instrument. Callers must
// check OK before reading prices; a side with no levels has Has* == false.
type Quote struct {
	TokenID   string
	OK        bool
	Ask       float64
	HasAsk    bool
	Bid       float64
	HasBid    bool
	Error     string
	FetchedAt time.Time
}

// QuoteFromBook derives the best ask/bid from a book snapshot.
func QuoteFromBook(b Book) Quote {
	q := Quote{TokenID: b.TokenID, OK: true, FetchedAt: b.Timestamp}
	if len(b.Asks) > 0 {
		q.Ask, q.HasAsk = b.Asks[0], true
	}
	if len(b.Bids) > 0 {
		q.Bid, q.HasBid = b.Bids[0], true
	}
	return q
}

// FailedQuote returns a not-OK quote carrying a reason code.
func FailedQuote(tokenID, reason string) Quote {
	return Quote{TokenID: tokenID, Error: reason, FetchedAt: time.Now().UTC()}
}

// AskOrNil returns the best ask, or nil when the side is empty.
func (q Quote) AskOrNil() any {
	if !q.HasAsk {
		return nil
	}
	return q.Ask
}

// BidOrNil returns the best bid, or nil when the side is empty.
func (q Quote) BidOrNil() any {
	if !q.HasBid {
		return nil
	}
	return q.Bid
}

// LogValue implements slog.LogValuer.
func (q Quote) LogValue() slog.Value {
	if !q.OK {
		return slog.GroupValue(
			slog.Bool("ok", false),
			slog.String("error", q.Error),
		)
	}
	return slog.GroupValue(
		slog.Bool("ok", true),
		slog.Any("ask", q.AskOrNil()),
		slog.Any("bid", q.BidOrNil()),
	)
}
