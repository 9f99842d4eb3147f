package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
)

// waitDelay bounds how long Execute waits for output pipes after the process
// was killed, children holding them open would otherwise block forever.
const waitDelay = 5 * time.Second

type Local struct {
	logger *slog.Logger
}

func NewLocal(logger *slog.Logger) *Local {
	return &Local{
		logger: logger.With(slog.String("executor", "local")),
	}
}

func (e *Local) Name() string {
	return "local-shell"
}

func (e *Local) Execute(
	ctx context.Context,
	stdout, stderr io.Writer,
	command string, args ...string,
) (int, error) {
	cmdStr := shellquote.Join(append([]string{command}, args...)...)
	e.logger.Debug("executing command locally", slog.String("cmd", cmdStr))

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		e.logger.Debug("command succeeded", slog.String("cmd", cmdStr))
		return 0, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		e.logger.Warn("command interrupted",
			slog.String("cmd", cmdStr),
			slog.String("error", ctxErr.Error()),
		)
		return -1, fmt.Errorf("command interrupted: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode := exitErr.ExitCode()
		e.logger.Debug("command exited non-zero",
			slog.String("cmd", cmdStr),
			slog.Int("exit_code", exitCode),
		)
		return exitCode, fmt.Errorf("command exited with code %d: %w", exitCode, err)
	}

	e.logger.Error("command execution error",
		slog.String("cmd", cmdStr),
		slog.String("error", err.Error()),
	)
	return -1, fmt.Errorf("command execution failed: %w", err)
}
