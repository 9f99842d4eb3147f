package disk

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/terabiome/archdev/pkg/executor"
	"github.com/terabiome/archdev/pkg/executor/fileops"
	"github.com/terabiome/archdev/pkg/executor/qemuimg"
)

const DefaultBaseImage = "/opt/compute-infra/omarchy/base.qcow2"

// Manager prepares and removes VM disk images on fleet hosts.
type Manager struct {
	runner    executor.HostRunner
	baseImage string
	imagePath func(name string) string
	logger    *slog.Logger
}

// NewManager creates a disk manager. imagePath maps a VM name to the path of
// its disk image and must agree with the domain definition.
func NewManager(runner executor.HostRunner, baseImage string, imagePath func(name string) string, logger *slog.Logger) *Manager {
	if baseImage == "" {
		baseImage = DefaultBaseImage
	}
	return &Manager{
		runner:    runner,
		baseImage: baseImage,
		imagePath: imagePath,
		logger:    logger.With(slog.String("component", "disk")),
	}
}

// Provision copies the base image for the VM and grows it to sizeMiB.
func (m *Manager) Provision(ctx context.Context, host, name string, sizeMiB int64) error {
	target := m.imagePath(name)
	m.logger.Debug("provisioning qcow2 disk",
		slog.String("host", host),
		slog.String("path", target),
		slog.String("base", m.baseImage),
		slog.Int64("size_mib", sizeMiB),
	)

	if _, err := qemuimg.Info(ctx, m.runner, host, qemuimg.InfoOptions{ImagePath: m.baseImage}); err != nil {
		return fmt.Errorf("base image %s unusable on host %s: %w", m.baseImage, host, err)
	}

	if err := fileops.CreateDirectory(ctx, m.runner, host, path.Dir(target)); err != nil {
		return err
	}

	if err := fileops.CopyFile(ctx, m.runner, host, m.baseImage, target); err != nil {
		return err
	}

	err := qemuimg.Resize(ctx, m.runner, host, qemuimg.ResizeOptions{
		ImagePath: target,
		Format:    "qcow2",
		SizeMiB:   sizeMiB,
	})
	if err != nil {
		return err
	}

	m.logger.Info("provisioned qcow2 disk",
		slog.String("host", host),
		slog.String("path", target),
		slog.Int64("size_mib", sizeMiB),
	)
	return nil
}

// Remove deletes the VM's disk image; a missing image is not an error.
func (m *Manager) Remove(ctx context.Context, host, name string) error {
	target := m.imagePath(name)
	if err := fileops.RemoveFile(ctx, m.runner, host, target); err != nil {
		return err
	}

	m.logger.Debug("removed disk image", slog.String("host", host), slog.String("path", target))
	return nil
}
