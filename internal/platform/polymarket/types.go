package polymarket

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderBook is the /book response. Sides are kept raw so a malformed side
// degrades to "no levels" instead of failing the whole decode.
type APIOrderBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Hash      string          `json:"hash"`
	Timestamp string          `json:"timestamp"`
	Bids      json.RawMessage `json:"bids"`
	Asks      json.RawMessage `json:"asks"`
}

// APIBookLevel is one price level. Price and size arrive either as numeric
// strings ("0.31") or as plain JSON numbers.
type APIBookLevel struct {
	Price json.RawMessage `json:"price"`
	Size  json.RawMessage `json:"size"`
}

// levelPrices returns the usable prices of one side: numeric, finite and > 0.
// Anything that is not an array of objects yields no prices.
func levelPrices(raw json.RawMessage) []float64 {
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var levels []json.RawMessage
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil
	}
	prices := make([]float64, 0, len(levels))
	for _, l := range levels {
		var lvl APIBookLevel
		if err := json.Unmarshal(l, &lvl); err != nil {
			continue
		}
		if p, ok := parseNumber(lvl.Price); ok && p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			prices = append(prices, p)
		}
	}
	return prices
}

// parseNumber accepts a JSON number or a string holding one.
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}
