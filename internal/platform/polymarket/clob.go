package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Reason codes carried by failed quotes.
var (
	ErrNoPrice     = errors.New("no_price")
	ErrInvalidJSON = errors.New("invalid_json")
)

// HTTPStatusError reports a non-2xx book response.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string { return fmt.Sprintf("http_%d", e.Code) }

// BookClient is the read-only REST client for the Polymarket CLOB order book.
type BookClient struct {
	http *resty.Client
}

// NewBookClient creates a client rooted at baseURL, e.g.
// "https://clob.polymarket.com". Every request is bounded by timeout.
func NewBookClient(baseURL string, timeout time.Duration) *BookClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &BookClient{http: c}
}

// Book fetches the order book for one token and returns its prices with
// asks ascending and bids descending.
func (c *BookClient) Book(ctx context.Context, tokenID string) (domain.Book, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		Get("/book")
	if err != nil {
		return domain.Book{}, fmt.Errorf("polymarket/clob: get book: %w", err)
	}
	if !resp.IsSuccess() {
		return domain.Book{}, &HTTPStatusError{Code: resp.StatusCode()}
	}

	var apiBook APIOrderBook
	if err := json.Unmarshal(resp.Body(), &apiBook); err != nil {
		return domain.Book{}, ErrInvalidJSON
	}

	asks := levelPrices(apiBook.Asks)
	bids := levelPrices(apiBook.Bids)
	if len(asks) == 0 && len(bids) == 0 {
		return domain.Book{}, ErrNoPrice
	}
	slices.Sort(asks)
	slices.Sort(bids)
	slices.Reverse(bids)

	return domain.Book{
		TokenID:   tokenID,
		Asks:      asks,
		Bids:      bids,
		Timestamp: time.Now().UTC(),
	}, nil
}

// BestPrice returns the best ask and bid for tokenID. It never fails past its
// boundary: every failure is folded into a not-OK quote with a reason code.
func (c *BookClient) BestPrice(ctx context.Context, tokenID string) domain.Quote {
	book, err := c.Book(ctx, tokenID)
	if err != nil {
		return domain.FailedQuote(tokenID, err.Error())
	}
	return domain.QuoteFromBook(book)
}
