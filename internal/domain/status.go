package domain

import "time"

// Health is the coarse liveness tag written to the status snapshot.
type Health string

const (
	HealthStarted  Health = "started"
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
)

// StatusSnapshot is the externally visible state written after every tick.
type StatusSnapshot struct {
	TS        time.Time `json:"ts"`
	Health    Health    `json:"health"`
	DryRun    bool      `json:"dryRun"`
	Capital   float64   `json:"capital"`
	ErrStreak int       `json:"errStreak"`
	Position  *Position `json:"position"`
	Note      string    `json:"note,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}
