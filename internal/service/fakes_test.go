package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terabiome/archdev/internal/descriptor"
	"github.com/terabiome/archdev/internal/errdefs"
	"github.com/terabiome/archdev/internal/fleet"
	"github.com/terabiome/archdev/internal/naming"
	"github.com/terabiome/archdev/internal/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory ports.Store; hosts listed in failList refuse to list.
type memStore struct {
	mu        sync.Mutex
	byHost    map[string]map[string]ports.Reservation
	failList  map[string]bool
	listDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		byHost:   make(map[string]map[string]ports.Reservation),
		failList: make(map[string]bool),
	}
}

func (s *memStore) Put(ctx context.Context, r ports.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byHost[r.Host] == nil {
		s.byHost[r.Host] = make(map[string]ports.Reservation)
	}
	s.byHost[r.Host][r.Name] = r
	return nil
}

func (s *memStore) Get(ctx context.Context, host, name string) (ports.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byHost[host][name]
	if !ok {
		return ports.Reservation{}, errdefs.ReservationNotFound(host, name)
	}
	return r, nil
}

func (s *memStore) Delete(ctx context.Context, host, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byHost[host], name)
	return nil
}

func (s *memStore) List(ctx context.Context, host string) ([]ports.Reservation, error) {
	s.mu.Lock()
	if s.failList[host] {
		s.mu.Unlock()
		return nil, &errdefs.CommandFailedError{Host: host, Command: "find", ExitCode: -1, Output: "connection refused"}
	}
	out := make([]ports.Reservation, 0, len(s.byHost[host]))
	for _, r := range s.byHost[host] {
		out = append(out, r)
	}
	s.mu.Unlock()

	if s.listDelay > 0 {
		time.Sleep(s.listDelay)
	}
	return out, nil
}

func (s *memStore) count(host string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHost[host])
}

// fakeHypervisor keeps domains per host. Like virsh through the libvirt
// manager, destroying a stopped domain or undefining a missing one succeeds.
// The *Err maps inject failures per host.
type fakeHypervisor struct {
	mu          sync.Mutex
	domains     map[string]map[string]string
	running     map[string]bool
	calls       []string
	defineErr   map[string]error
	startErr    map[string]error
	destroyErr  map[string]error
	undefineErr map[string]error
	existsErr   map[string]error
}

func newFakeHypervisor() *fakeHypervisor {
	return &fakeHypervisor{
		domains:     make(map[string]map[string]string),
		running:     make(map[string]bool),
		defineErr:   make(map[string]error),
		startErr:    make(map[string]error),
		destroyErr:  make(map[string]error),
		undefineErr: make(map[string]error),
		existsErr:   make(map[string]error),
	}
}

func (h *fakeHypervisor) record(call string) {
	h.calls = append(h.calls, call)
}

func (h *fakeHypervisor) Define(ctx context.Context, host, name, domainXML string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("define " + host + "/" + name)
	if err := h.defineErr[host]; err != nil {
		return err
	}
	if h.domains[host] == nil {
		h.domains[host] = make(map[string]string)
	}
	h.domains[host][name] = domainXML
	return nil
}

func (h *fakeHypervisor) Start(ctx context.Context, host, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("start " + host + "/" + name)
	if err := h.startErr[host]; err != nil {
		return err
	}
	h.running[host+"/"+name] = true
	return nil
}

func (h *fakeHypervisor) Destroy(ctx context.Context, host, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("destroy " + host + "/" + name)
	if err := h.destroyErr[host]; err != nil {
		return err
	}
	delete(h.running, host+"/"+name)
	return nil
}

func (h *fakeHypervisor) Undefine(ctx context.Context, host, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("undefine " + host + "/" + name)
	if err := h.undefineErr[host]; err != nil {
		return err
	}
	delete(h.domains[host], name)
	return nil
}

func (h *fakeHypervisor) Exists(ctx context.Context, host, name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("exists " + host + "/" + name)
	if err := h.existsErr[host]; err != nil {
		return false, err
	}
	_, ok := h.domains[host][name]
	return ok, nil
}

// shutdown simulates a guest powering itself off.
func (h *fakeHypervisor) shutdown(host, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.running, host+"/"+name)
}

func (h *fakeHypervisor) defined(host, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.domains[host][name]
	return ok
}

type fakeDisks struct {
	mu           sync.Mutex
	images       map[string]int64
	provisionErr error
	removeErr    error
	removed      []string
}

func newFakeDisks() *fakeDisks {
	return &fakeDisks{images: make(map[string]int64)}
}

func (d *fakeDisks) Provision(ctx context.Context, host, name string, sizeMiB int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.provisionErr != nil {
		return d.provisionErr
	}
	d.images[host+"/"+name] = sizeMiB
	return nil
}

func (d *fakeDisks) Remove(ctx context.Context, host, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, host+"/"+name)
	if d.removeErr != nil {
		return d.removeErr
	}
	delete(d.images, host+"/"+name)
	return nil
}

func (d *fakeDisks) has(host, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.images[host+"/"+name]
	return ok
}

type harness struct {
	svc        *VMService
	store      *memStore
	registry   *ports.Registry
	hypervisor *fakeHypervisor
	disks      *fakeDisks
}

func newHarness(t *testing.T, opts ...ports.Option) *harness {
	t.Helper()

	dir, err := fleet.New([]fleet.HostRecord{
		{ID: "h1", Address: "10.0.0.1", Domain: "h1.example.net"},
		{ID: "h2", Address: "10.0.0.2", Domain: "h2.example.net"},
	})
	require.NoError(t, err)

	store := newMemStore()
	registry, err := ports.NewRegistry(store, discardLogger(), opts...)
	require.NoError(t, err)

	names, err := naming.NewScheme("vm")
	require.NoError(t, err)

	h := &harness{
		store:      store,
		registry:   registry,
		hypervisor: newFakeHypervisor(),
		disks:      newFakeDisks(),
	}
	h.svc = NewVMService(Dependencies{
		Fleet:      dir,
		Registry:   registry,
		Disks:      h.disks,
		Hypervisor: h.hypervisor,
		Builder:    descriptor.NewBuilder(0, "", ""),
		Names:      names,
	}, 2, discardLogger())
	return h
}

func (h *harness) mustCreate(t *testing.T, host string) *VM {
	t.Helper()
	vm, err := h.svc.Create(context.Background(), CreateVMParams{RAM: "8G", Storage: "50G", Host: host})
	require.NoError(t, err)
	return vm
}

func commandFailed(host string) error {
	return fmt.Errorf("wrapped: %w", &errdefs.CommandFailedError{Host: host, Command: "virsh", ExitCode: 1})
}
