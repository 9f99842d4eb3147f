// Package dispatch runs shell command lines on fleet hosts, locally or over SSH.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/terabiome/archdev/internal/errdefs"
	"github.com/terabiome/archdev/pkg/executor"
)

// Dispatcher executes a command line on a host and returns its combined
// stdout and stderr.
type Dispatcher interface {
	Execute(ctx context.Context, hostID, command string) (string, error)
}

// DefaultTimeout bounds a single dispatched command when none is configured.
const DefaultTimeout = 10 * time.Minute

// Command quotes name and args into a single shell command line.
func Command(name string, args ...string) string {
	return shellquote.Join(append([]string{name}, args...)...)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// run executes command through exec and maps the outcome onto the
// dispatcher error kinds. ctx carries the per-call deadline.
func run(ctx context.Context, exec executor.Executor, hostID, command string, logger *slog.Logger) (string, error) {
	start := time.Now()
	output, exitCode, err := executor.RunCombined(ctx, exec, "sh", "-c", command)
	if err == nil {
		logger.Debug("command dispatched",
			slog.String("host", hostID),
			slog.String("via", exec.Name()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return output, nil
	}

	if exitCode < 0 && output == "" {
		output = err.Error()
	}
	return output, classify(ctx, hostID, command, exitCode, output, logger)
}

func classify(ctx context.Context, hostID, command string, exitCode int, output string, logger *slog.Logger) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logger.Warn("command timed out", slog.String("host", hostID))
		return errdefs.DispatchTimeout(hostID, command, ctx.Err())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("command on host %s cancelled: %w", hostID, ctxErr)
	}

	return &errdefs.CommandFailedError{
		Host:     hostID,
		Command:  command,
		ExitCode: exitCode,
		Output:   output,
	}
}
