package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/terabiome/archdev/pkg/executor"
)

// Local runs commands on the machine the service itself runs on.
type Local struct {
	exec    executor.Executor
	timeout time.Duration
	logger  *slog.Logger
}

func NewLocal(exec executor.Executor, timeout time.Duration, logger *slog.Logger) *Local {
	return &Local{
		exec:    exec,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "dispatch"), slog.String("mode", "local")),
	}
}

func (d *Local) Execute(ctx context.Context, hostID, command string) (string, error) {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	return run(ctx, d.exec, hostID, command, d.logger)
}
