package ports

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/terabiome/archdev/internal/errdefs"
)

// DefaultMaxAttempts bounds the random draws of a single allocation.
const DefaultMaxAttempts = 10

// Registry allocates unique (ssh, vnc) port pairs per host. Allocations on
// the same host are serialised so that the check and the write of one
// allocation cannot interleave with another.
type Registry struct {
	store       Store
	ssh         Range
	vnc         Range
	maxAttempts int
	intn        func(n int) int
	logger      *slog.Logger

	mu        sync.Mutex
	hostLocks map[string]*sync.Mutex
}

type Option func(*Registry)

func WithRanges(ssh, vnc Range) Option {
	return func(r *Registry) {
		r.ssh = ssh
		r.vnc = vnc
	}
}

func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		r.maxAttempts = n
	}
}

// WithRandom replaces the uniform source used to draw ports; intn must
// return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(r *Registry) {
		r.intn = intn
	}
}

func NewRegistry(store Store, logger *slog.Logger, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:       store,
		ssh:         DefaultSSHRange,
		vnc:         DefaultVNCRange,
		maxAttempts: DefaultMaxAttempts,
		intn:        rand.IntN,
		logger:      logger.With(slog.String("component", "port-registry")),
		hostLocks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.ssh.Validate(); err != nil {
		return nil, fmt.Errorf("ssh ports: %w", err)
	}
	if err := r.vnc.Validate(); err != nil {
		return nil, fmt.Errorf("vnc ports: %w", err)
	}
	if r.ssh.overlaps(r.vnc) {
		return nil, fmt.Errorf("ssh ports %s overlap vnc ports %s", r.ssh, r.vnc)
	}
	if r.maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", r.maxAttempts)
	}

	return r, nil
}

func (r *Registry) SSHRange() Range { return r.ssh }
func (r *Registry) VNCRange() Range { return r.vnc }

func (r *Registry) hostLock(host string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.hostLocks[host]
	if !ok {
		lock = &sync.Mutex{}
		r.hostLocks[host] = lock
	}
	return lock
}

// Allocate draws a port pair not used by any live reservation on host and
// persists it for name. When every draw collides it fails with
// errdefs.ErrPortAllocationExhausted and nothing is persisted.
func (r *Registry) Allocate(ctx context.Context, host, name string) (Reservation, error) {
	lock := r.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	live, err := r.store.List(ctx, host)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to read reservations on host %s: %w", host, err)
	}

	used := make(map[int]bool, 2*len(live))
	for _, res := range live {
		if res.Name == name {
			return Reservation{}, fmt.Errorf("vm %s already holds ports %d/%d on host %s",
				name, res.SSHPort, res.VNCPort, host)
		}
		used[res.SSHPort] = true
		used[res.VNCPort] = true
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		sshPort := r.ssh.Min + r.intn(r.ssh.Size())
		vncPort := r.vnc.Min + r.intn(r.vnc.Size())
		if used[sshPort] || used[vncPort] {
			r.logger.Debug("port pair taken, drawing again",
				slog.String("host", host),
				slog.Int("attempt", attempt),
				slog.Int("ssh_port", sshPort),
				slog.Int("vnc_port", vncPort),
			)
			continue
		}

		res := Reservation{Name: name, Host: host, SSHPort: sshPort, VNCPort: vncPort}
		if err := r.store.Put(ctx, res); err != nil {
			return Reservation{}, err
		}

		r.logger.Info("ports reserved",
			slog.String("host", host),
			slog.String("vm", name),
			slog.Int("ssh_port", sshPort),
			slog.Int("vnc_port", vncPort),
		)
		return res, nil
	}

	r.logger.Warn("port allocation exhausted",
		slog.String("host", host),
		slog.String("vm", name),
		slog.Int("live_reservations", len(live)),
	)
	return Reservation{}, errdefs.PortAllocationExhausted(host, r.maxAttempts)
}

// Load returns the reservation of name on host.
func (r *Registry) Load(ctx context.Context, host, name string) (Reservation, error) {
	return r.store.Get(ctx, host, name)
}

// Delete removes the reservation; deleting an absent one is not an error.
func (r *Registry) Delete(ctx context.Context, host, name string) error {
	if err := r.store.Delete(ctx, host, name); err != nil {
		return fmt.Errorf("failed to delete reservation %s on host %s: %w", name, host, err)
	}
	return nil
}

func (r *Registry) List(ctx context.Context, host string) ([]Reservation, error) {
	return r.store.List(ctx, host)
}
