package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBookServer serves body with status for every /book request and records
// the token_id it was asked for.
func newBookServer(t *testing.T, status int, body string, gotToken *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book" {
			http.NotFound(w, r)
			return
		}
		if gotToken != nil {
			*gotToken = r.URL.Query().Get("token_id")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func Test_BestPrice(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantOK  bool
		wantErr string
		hasAsk  bool
		ask     float64
		hasBid  bool
		bid     float64
	}{
		{
			name:   "string prices",
			status: http.StatusOK,
			body:   `{"asks":[{"price":"0.35","size":"10"},{"price":"0.31","size":"5"}],"bids":[{"price":"0.27"},{"price":"0.29"}]}`,
			wantOK: true, hasAsk: true, ask: 0.31, hasBid: true, bid: 0.29,
		},
		{
			name:   "numeric prices",
			status: http.StatusOK,
			body:   `{"asks":[{"price":0.4},{"price":0.38}],"bids":[{"price":0.1}]}`,
			wantOK: true, hasAsk: true, ask: 0.38, hasBid: true, bid: 0.1,
		},
		{
			name:   "non-positive and garbage levels are dropped",
			status: http.StatusOK,
			body:   `{"asks":[{"price":"0"},{"price":"abc"},{"price":null},{"price":"-1"},{"price":" 0.5 "}],"bids":[]}`,
			wantOK: true, hasAsk: true, ask: 0.5,
		},
		{
			name:   "non-finite levels are dropped",
			status: http.StatusOK,
			body:   `{"asks":[{"price":"1e400"},{"price":"0.33"}],"bids":[{"price":"0.34"},{"price":"1e400"},{"price":1e999}]}`,
			wantOK: true, hasAsk: true, ask: 0.33, hasBid: true, bid: 0.34,
		},
		{
			name:   "bids only",
			status: http.StatusOK,
			body:   `{"asks":[],"bids":[{"price":"0.2"}]}`,
			wantOK: true, hasBid: true, bid: 0.2,
		},
		{
			name:   "side that is not an array counts as empty",
			status: http.StatusOK,
			body:   `{"asks":{"price":"0.3"},"bids":[{"price":"0.2"}]}`,
			wantOK: true, hasBid: true, bid: 0.2,
		},
		{
			name:    "both sides empty",
			status:  http.StatusOK,
			body:    `{"asks":[],"bids":[]}`,
			wantErr: "no_price",
		},
		{
			name:    "http error",
			status:  http.StatusNotFound,
			body:    `{"error":"No orderbook exists"}`,
			wantErr: "http_404",
		},
		{
			name:    "unparsable body",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: "invalid_json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newBookServer(t, tt.status, tt.body, nil)
			c := NewBookClient(srv.URL, 2*time.Second)

			q := c.BestPrice(context.Background(), "tok")

			assert.Equal(t, tt.wantOK, q.OK)
			assert.Equal(t, "tok", q.TokenID)
			if !tt.wantOK {
				assert.Equal(t, tt.wantErr, q.Error)
				return
			}
			assert.Equal(t, tt.hasAsk, q.HasAsk)
			assert.Equal(t, tt.hasBid, q.HasBid)
			if tt.hasAsk {
				assert.InDelta(t, tt.ask, q.Ask, 1e-12)
			}
			if tt.hasBid {
				assert.InDelta(t, tt.bid, q.Bid, 1e-12)
			}
		})
	}
}

func Test_BookSortsLevels(t *testing.T) {
	var token string
	srv := newBookServer(t, http.StatusOK,
		`{"asks":[{"price":"0.5"},{"price":"0.3"},{"price":"0.4"}],"bids":[{"price":"0.1"},{"price":"0.25"},{"price":"0.2"}]}`,
		&token)
	c := NewBookClient(srv.URL+"/", time.Second)

	book, err := c.Book(context.Background(), "7123/abc")
	require.NoError(t, err)

	assert.Equal(t, "7123/abc", token, "token id is query-escaped and round-trips")
	assert.Equal(t, []float64{0.3, 0.4, 0.5}, book.Asks)
	assert.Equal(t, []float64{0.25, 0.2, 0.1}, book.Bids)
}

func Test_BestPriceTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewBookClient(srv.URL, 50*time.Millisecond)
	q := c.BestPrice(context.Background(), "tok")

	assert.False(t, q.OK, "a hung endpoint is an ordinary failed quote")
	assert.NotEmpty(t, q.Error)
}

func Test_BestPriceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	q := NewBookClient(url, time.Second).BestPrice(context.Background(), "tok")
	assert.False(t, q.OK)
	assert.NotEmpty(t, q.Error)
}
