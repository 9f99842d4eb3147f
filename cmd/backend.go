package main

import (
	"context"
	"log/slog"

	"github.com/terabiome/archdev/internal/adapter"
	"github.com/terabiome/archdev/internal/api"
	"github.com/terabiome/archdev/internal/client"
	"github.com/terabiome/archdev/internal/config"
)

// backend is what the vm and fleet commands drive: a remote archdev server
// or, without api_url, the services built in this process.
type backend interface {
	Create(ctx context.Context, req api.CreateVMRequest) (*api.CreateVMResponse, error)
	List(ctx context.Context) ([]api.VMInfo, error)
	Kill(ctx context.Context, name string) (*api.KillVMResponse, error)
	FleetStatus(ctx context.Context) ([]api.HostStatus, error)
}

func newBackend(cfg *config.Config, log *slog.Logger) (backend, error) {
	if cfg.APIURL != "" {
		log.Debug("using archdev server", slog.String("api_url", cfg.APIURL))
		c, err := client.New(cfg.APIURL, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	svc, err := initServices(cfg, log)
	if err != nil {
		return nil, err
	}
	return &localBackend{svc: svc}, nil
}

// localBackend runs the controller in-process. Port allocation is then only
// serialised against other callers of this process.
type localBackend struct {
	svc *services
}

func (b *localBackend) Create(ctx context.Context, req api.CreateVMRequest) (*api.CreateVMResponse, error) {
	vm, err := b.svc.vms.Create(ctx, adapter.AdaptCreateVM(req))
	if err != nil {
		return nil, err
	}
	resp := adapter.AdaptCreatedVMToAPI(vm)
	return &resp, nil
}

func (b *localBackend) List(ctx context.Context) ([]api.VMInfo, error) {
	vms, err := b.svc.vms.List(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.AdaptVMsToAPI(vms), nil
}

func (b *localBackend) Kill(ctx context.Context, name string) (*api.KillVMResponse, error) {
	result, err := b.svc.vms.Kill(ctx, name)
	if err != nil {
		return nil, err
	}
	resp := adapter.AdaptKillResultToAPI(result)
	return &resp, nil
}

func (b *localBackend) FleetStatus(ctx context.Context) ([]api.HostStatus, error) {
	return adapter.AdaptHostStatusesToAPI(b.svc.hosts.Status(ctx)), nil
}

// hostAddress lets connection hints fall back to the inventory address.
func (b *localBackend) hostAddress(id string) string {
	record, err := b.svc.fleet.Resolve(id)
	if err != nil {
		return ""
	}
	return record.Address
}
