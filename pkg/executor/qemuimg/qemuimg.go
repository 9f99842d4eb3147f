package qemuimg

import (
	"context"
	"fmt"

	"github.com/kballard/go-shellquote"

	"github.com/terabiome/archdev/pkg/executor"
)

type ResizeOptions struct {
	ImagePath string
	Format    string
	SizeMiB   int64
}

// Resize grows the image to the given absolute size.
func Resize(ctx context.Context, runner executor.HostRunner, host string, opts ResizeOptions) error {
	format := opts.Format
	if format == "" {
		format = "qcow2"
	}

	cmd := shellquote.Join("qemu-img", "resize", "-f", format, opts.ImagePath, fmt.Sprintf("%dM", opts.SizeMiB))
	if _, err := runner.Execute(ctx, host, cmd); err != nil {
		return fmt.Errorf("qemu-img resize failed: %w", err)
	}
	return nil
}

type InfoOptions struct {
	ImagePath string
}

func Info(ctx context.Context, runner executor.HostRunner, host string, opts InfoOptions) (string, error) {
	out, err := runner.Execute(ctx, host, shellquote.Join("qemu-img", "info", opts.ImagePath))
	if err != nil {
		return "", fmt.Errorf("qemu-img info failed: %w", err)
	}
	return out, nil
}
