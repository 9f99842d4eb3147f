package main

import (
	"fmt"
	"log/slog"

	"github.com/terabiome/archdev/internal/config"
	"github.com/terabiome/archdev/internal/descriptor"
	"github.com/terabiome/archdev/internal/dispatch"
	"github.com/terabiome/archdev/internal/fleet"
	"github.com/terabiome/archdev/internal/infrastructure/disk"
	"github.com/terabiome/archdev/internal/infrastructure/libvirt"
	"github.com/terabiome/archdev/internal/naming"
	"github.com/terabiome/archdev/internal/ports"
	"github.com/terabiome/archdev/internal/service"
	"github.com/terabiome/archdev/pkg/executor"
)

// services is the object graph shared by the server and the CLI commands.
type services struct {
	fleet *fleet.Directory
	vms   *service.VMService
	hosts *service.FleetService
}

func initServices(cfg *config.Config, log *slog.Logger) (*services, error) {
	dir, err := fleet.Load(cfg.FleetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load fleet: %w", err)
	}
	log.Debug("fleet loaded", slog.String("path", cfg.FleetPath), slog.Int("hosts", dir.Len()))

	if cfg.LocalHost != "" {
		if _, err := dir.Resolve(cfg.LocalHost); err != nil {
			return nil, fmt.Errorf("local_host: %w", err)
		}
	}

	dispatchLog := log.With(slog.String("component", "dispatch"))
	local := dispatch.NewLocal(executor.NewLocal(dispatchLog), cfg.DispatchTimeout, dispatchLog)
	remote := dispatch.NewRemote(dir, dispatch.SSHDialer(dispatch.SSHOptions{
		User:                  cfg.SSHUser,
		Port:                  cfg.SSHPort,
		KeyPath:               cfg.SSHKeyPath,
		KnownHostsPath:        cfg.SSHKnownHosts,
		StrictHostKeyChecking: cfg.SSHStrictHostKey,
	}, dispatchLog), cfg.DispatchTimeout, dispatchLog)
	runner := dispatch.NewRouter(dir, cfg.LocalHost, local, remote)

	registry, err := ports.NewRegistry(
		ports.NewRemoteStore(runner, cfg.ReservationDir, log),
		log,
		ports.WithRanges(cfg.SSHPorts, cfg.VNCPorts),
		ports.WithMaxAttempts(cfg.PortAllocationAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize port registry: %w", err)
	}

	names, err := naming.NewScheme(cfg.VMPrefix)
	if err != nil {
		return nil, fmt.Errorf("vm_prefix: %w", err)
	}

	log.Debug("naming and port ranges",
		slog.String("prefix", names.Prefix()),
		slog.String("ssh_ports", registry.SSHRange().String()),
		slog.String("vnc_ports", registry.VNCRange().String()),
	)

	builder := descriptor.NewBuilder(uint(cfg.VMVCPUs), cfg.ImageDir, cfg.VMBridge)
	hypervisor := libvirt.NewManager(runner, cfg.LibvirtURI, log)

	vms := service.NewVMService(service.Dependencies{
		Fleet:      dir,
		Registry:   registry,
		Disks:      disk.NewManager(runner, cfg.BaseImage, builder.ImagePath, log),
		Hypervisor: hypervisor,
		Builder:    builder,
		Names:      names,
	}, cfg.ListConcurrency, log)

	return &services{
		fleet: dir,
		vms:   vms,
		hosts: service.NewFleetService(dir, hypervisor, cfg.ListConcurrency, log),
	}, nil
}
