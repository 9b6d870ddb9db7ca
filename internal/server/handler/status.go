package handler

import (
	"net/http"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// EngineView is the read-only engine surface the API needs.
type EngineView interface {
	Status() domain.StatusSnapshot
	Trades(limit int) []domain.Trade
}

// StatusHandler serves the engine's status snapshot and trade history.
type StatusHandler struct {
	src EngineView
}

// NewStatusHandler creates a StatusHandler reading from src.
func NewStatusHandler(src EngineView) *StatusHandler {
	return &StatusHandler{src: src}
}

// GetStatus returns the latest status snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Status())
}

// ListTrades returns closed trades, newest first.
// GET /api/trades?limit=N
func (h *StatusHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades := h.src.Trades(parseLimit(r))
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}
