package executor

import (
	"context"
	"io"
)

// Executor runs a single process and streams its output.
type Executor interface {
	Execute(ctx context.Context, stdout, stderr io.Writer, command string, args ...string) (exitCode int, err error)
	Name() string
}

// HostRunner runs a shell command line on a fleet host and returns its
// combined output. The command dispatcher satisfies it.
type HostRunner interface {
	Execute(ctx context.Context, hostID, command string) (string, error)
}
