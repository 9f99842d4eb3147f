package executor

import (
	"bytes"
	"context"
	"sync"
)

// RunCombined runs the command with stdout and stderr interleaved into one buffer.
func RunCombined(ctx context.Context, exec Executor, command string, args ...string) (string, int, error) {
	var out combinedBuffer
	exitCode, err := exec.Execute(ctx, &out, &out, command, args...)
	return out.String(), exitCode, err
}

// combinedBuffer is written to concurrently by the stdout and stderr copiers.
type combinedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *combinedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *combinedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
