package domain

import (
	"context"
	"time"
)

// StateStore durably persists engine capital, the open position and closed
// trades so a restart resumes where the previous process stopped.
type StateStore interface {
	Load(ctx context.Context, pairKey string) (PersistedState, bool, error)
	SaveState(ctx context.Context, pairKey string, capital float64, pos *Position) error
	AppendTrade(ctx context.Context, pairKey string, t Trade) error
}

// PersistedState is what a StateStore hands back on startup.
type PersistedState struct {
	Capital  float64
	Position *Position
	Trades   []Trade
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. KeepAlive blocks, extending the lock until ctx is
// done, and returns ErrLockLost if another holder took it over.
type Lease interface {
	KeepAlive(ctx context.Context) error
	Release()
}
