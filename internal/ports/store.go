package ports

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/terabiome/archdev/internal/errdefs"
	"github.com/terabiome/archdev/pkg/executor"
	"github.com/terabiome/archdev/pkg/executor/fileops"
)

// Store persists reservations per host.
type Store interface {
	Put(ctx context.Context, r Reservation) error
	// Get returns errdefs.ErrReservationNotFound when the name has no reservation.
	Get(ctx context.Context, host, name string) (Reservation, error)
	Delete(ctx context.Context, host, name string) error
	List(ctx context.Context, host string) ([]Reservation, error)
}

// DefaultReservationDir holds one JSON document per VM on every host.
const DefaultReservationDir = "/var/lib/archdev/ports"

// RemoteStore keeps each reservation as <dir>/<vm name>.json on the VM's
// host, so reservations survive restarts of both the host and the service.
type RemoteStore struct {
	runner executor.HostRunner
	dir    string
	logger *slog.Logger
}

func NewRemoteStore(runner executor.HostRunner, dir string, logger *slog.Logger) *RemoteStore {
	if dir == "" {
		dir = DefaultReservationDir
	}
	return &RemoteStore{
		runner: runner,
		dir:    dir,
		logger: logger.With(slog.String("component", "port-store")),
	}
}

func (s *RemoteStore) path(name string) string {
	return path.Join(s.dir, name+".json")
}

func (s *RemoteStore) Put(ctx context.Context, r Reservation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reservation %s: %w", r.Name, err)
	}

	if err := fileops.WriteFile(ctx, s.runner, r.Host, s.path(r.Name), string(data)+"\n"); err != nil {
		return fmt.Errorf("failed to persist reservation %s: %w", r.Name, err)
	}
	return nil
}

func (s *RemoteStore) Get(ctx context.Context, host, name string) (Reservation, error) {
	content, found, err := fileops.ReadFile(ctx, s.runner, host, s.path(name))
	if err != nil {
		return Reservation{}, err
	}
	if !found {
		return Reservation{}, errdefs.ReservationNotFound(host, name)
	}

	var r Reservation
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &r); err != nil {
		return Reservation{}, fmt.Errorf("corrupt reservation %s on host %s: %w", name, host, err)
	}
	return r, nil
}

func (s *RemoteStore) Delete(ctx context.Context, host, name string) error {
	return fileops.RemoveFile(ctx, s.runner, host, s.path(name))
}

// List reads every reservation file of the host. Unparseable entries are
// logged and skipped.
func (s *RemoteStore) List(ctx context.Context, host string) ([]Reservation, error) {
	out, err := fileops.CatDirectory(ctx, s.runner, host, s.dir, "*.json")
	if err != nil {
		return nil, err
	}

	var reservations []Reservation
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var r Reservation
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			s.logger.Warn("skipping unreadable reservation",
				slog.String("host", host),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.Host = host
		reservations = append(reservations, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reservations on host %s: %w", host, err)
	}

	return reservations, nil
}
