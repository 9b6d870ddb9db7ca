// Package executor submits orders on behalf of the decision engine. Two
// implementations exist: DryRun, which only logs, and Subprocess, which hands
// the order to an external command so exchange integration stays pluggable.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/eventlog"
)

// Executor submits one order and reports a tagged result. Implementations
// never return failures any other way.
type Executor interface {
	Execute(ctx context.Context, order domain.OrderIntent) domain.OrderResult
	Name() string
}

// New selects DryRun or Subprocess from the configuration.
func New(dryRun bool, command string, timeout time.Duration, events *eventlog.Log, logger *slog.Logger) Executor {
	if dryRun {
		return NewDryRun(events)
	}
	return NewSubprocess(command, timeout, logger)
}

// DryRun simulates execution: every order succeeds and nothing leaves the
// process.
type DryRun struct {
	events *eventlog.Log
	now    func() time.Time
}

// NewDryRun creates a DryRun executor that records each simulated order on
// events as DRY_ORDER.
func NewDryRun(events *eventlog.Log) *DryRun {
	return &DryRun{events: events, now: time.Now}
}

// Execute logs the order and returns a timestamp-based identifier.
func (d *DryRun) Execute(_ context.Context, order domain.OrderIntent) domain.OrderResult {
	d.events.Info("DRY_ORDER", OrderAttrs(order)...)
	return domain.OrderResult{
		OK:      true,
		OrderID: fmt.Sprintf("dry-%d", d.now().UnixMilli()),
	}
}

// Name returns the executor identifier.
func (d *DryRun) Name() string { return "dry_run" }

// OrderAttrs flattens an order into log attributes.
func OrderAttrs(o domain.OrderIntent) []any {
	return []any{
		slog.String("action", string(o.Action)),
		slog.String("side", string(o.Side)),
		slog.String("tokenId", o.TokenID),
		slog.Float64("price", o.Price),
		slog.Float64("sizeUsdc", o.SizeUSDC),
		slog.String("reason", o.Reason),
	}
}
