package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/terabiome/archdev/internal/fleet"
	"github.com/terabiome/archdev/pkg/executor"
)

// Session is an executor bound to one host connection.
type Session interface {
	executor.Executor
	Close() error
}

// Dialer opens a session to a fleet host.
type Dialer func(ctx context.Context, host fleet.HostRecord) (Session, error)

// SSHOptions are the connection settings shared by every remote host.
type SSHOptions struct {
	User                  string
	Port                  int
	KeyPath               string
	KnownHostsPath        string
	StrictHostKeyChecking bool
	DialTimeout           time.Duration
}

// SSHDialer connects to the host address with key authentication.
func SSHDialer(opts SSHOptions, logger *slog.Logger) Dialer {
	return func(ctx context.Context, host fleet.HostRecord) (Session, error) {
		conn, err := executor.DialSSH(ctx, executor.SSHConfig{
			Host:                  host.Address,
			Port:                  opts.Port,
			User:                  opts.User,
			KeyPath:               opts.KeyPath,
			KnownHostsPath:        opts.KnownHostsPath,
			StrictHostKeyChecking: opts.StrictHostKeyChecking,
			DialTimeout:           opts.DialTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Remote opens one connection per command to the host's address.
type Remote struct {
	fleet   *fleet.Directory
	dial    Dialer
	timeout time.Duration
	logger  *slog.Logger
}

func NewRemote(dir *fleet.Directory, dial Dialer, timeout time.Duration, logger *slog.Logger) *Remote {
	return &Remote{
		fleet:   dir,
		dial:    dial,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "dispatch"), slog.String("mode", "remote")),
	}
}

func (d *Remote) Execute(ctx context.Context, hostID, command string) (string, error) {
	host, err := d.fleet.Resolve(hostID)
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	session, err := d.dial(ctx, host)
	if err != nil {
		d.logger.Warn("failed to connect to host",
			slog.String("host", hostID),
			slog.String("address", host.Address),
			slog.String("error", err.Error()),
		)
		return "", classify(ctx, hostID, command, -1, err.Error(), d.logger)
	}
	defer session.Close()

	return run(ctx, session, hostID, command, d.logger)
}
