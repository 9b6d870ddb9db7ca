package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ErrNoCommand is reported when live trading is enabled without a command.
var ErrNoCommand = errors.New("EXECUTE_ORDER_CMD is not set and DRY_RUN=false")

// subprocessReply is the single JSON object the command prints on stdout.
type subprocessReply struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

// Subprocess runs a shell command per order. The JSON-encoded order is
// written to its stdin, which is then closed; the command must exit 0 and
// print {"ok":true,"orderId":"..."} or {"ok":false,"error":"..."}.
type Subprocess struct {
	command string
	shell   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSubprocess creates a Subprocess executor. A non-positive timeout means
// no deadline beyond the caller's context.
func NewSubprocess(command string, timeout time.Duration, logger *slog.Logger) *Subprocess {
	return &Subprocess{
		command: strings.TrimSpace(command),
		shell:   "sh",
		timeout: timeout,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Name returns the executor identifier.
func (s *Subprocess) Name() string { return "subprocess" }

// Execute runs the command for one order. Every failure, including a
// timeout, comes back as a not-OK result with diagnostic detail.
func (s *Subprocess) Execute(ctx context.Context, order domain.OrderIntent) domain.OrderResult {
	if s.command == "" {
		return domain.OrderResult{Error: ErrNoCommand.Error()}
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return domain.OrderResult{Error: fmt.Sprintf("executor: marshal order: %v", err)}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.shell, "-c", s.command)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Grandchildren can hold the pipes open after the shell is killed.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	s.logger.Debug("executor command finished",
		slog.String("action", string(order.Action)),
		slog.Duration("duration", time.Since(start)),
	)

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.OrderResult{
				Code:  -1,
				Error: fmt.Sprintf("executor timed out: %v", ctxErr),
				Raw:   stdout.String(),
			}
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return domain.OrderResult{
				Code:  exitErr.ExitCode(),
				Error: firstNonEmpty(stderr.String(), stdout.String(), "executor failed"),
			}
		}
		return domain.OrderResult{Error: fmt.Sprintf("executor: start: %v", runErr)}
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = "{}"
	}
	var reply subprocessReply
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		return domain.OrderResult{
			Error: fmt.Sprintf("invalid executor json: %v", err),
			Raw:   out,
		}
	}
	if !reply.OK {
		return domain.OrderResult{Error: firstNonEmpty(reply.Error, "executor returned not ok")}
	}
	return domain.OrderResult{OK: true, OrderID: reply.OrderID}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
