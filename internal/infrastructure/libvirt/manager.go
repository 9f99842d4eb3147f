// Package libvirt drives the hypervisor of a fleet host through virsh.
package libvirt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/terabiome/archdev/internal/errdefs"
	"github.com/terabiome/archdev/pkg/executor"
)

const DefaultURI = "qemu:///system"

// Manager manages libvirt domains on fleet hosts.
type Manager struct {
	runner executor.HostRunner
	uri    string
	logger *slog.Logger
}

func NewManager(runner executor.HostRunner, uri string, logger *slog.Logger) *Manager {
	if uri == "" {
		uri = DefaultURI
	}
	return &Manager{
		runner: runner,
		uri:    uri,
		logger: logger.With(slog.String("component", "libvirt")),
	}
}

func (m *Manager) virsh(args ...string) string {
	return shellquote.Join(append([]string{"virsh", "-c", m.uri}, args...)...)
}

// Define registers the domain from its XML. The document is staged in a
// temporary file on the host, which is removed whatever the outcome.
func (m *Manager) Define(ctx context.Context, host, name, domainXML string) error {
	cmd := `f=$(mktemp /tmp/archdev-domain.XXXXXX) || exit 1; ` +
		shellquote.Join("printf", "%s", domainXML) + ` > "$f" && ` +
		m.virsh("define") + ` "$f"; rc=$?; rm -f "$f"; exit $rc`

	if _, err := m.runner.Execute(ctx, host, cmd); err != nil {
		return fmt.Errorf("could not define VM %s: %w", name, err)
	}

	m.logger.Debug("defined VM in libvirt", slog.String("host", host), slog.String("vm", name))
	return nil
}

func (m *Manager) Start(ctx context.Context, host, name string) error {
	if _, err := m.runner.Execute(ctx, host, m.virsh("start", name)); err != nil {
		return fmt.Errorf("could not start VM %s: %w", name, err)
	}

	m.logger.Info("started VM", slog.String("host", host), slog.String("vm", name))
	return nil
}

// virsh reports these when the domain is already in the requested state.
var (
	notRunningMessages = []string{"domain is not running", "domain not found", "failed to get domain"}
	notDefinedMessages = []string{"domain not found", "failed to get domain"}
)

// alreadyDone reports whether err is virsh refusing an action that has
// nothing left to do. Transport failures never qualify.
func alreadyDone(err error, messages []string) bool {
	var cmdErr *errdefs.CommandFailedError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode <= 0 {
		return false
	}
	out := strings.ToLower(cmdErr.Output)
	for _, msg := range messages {
		if strings.Contains(out, msg) {
			return true
		}
	}
	return false
}

// Destroy forcefully powers the VM off. A VM that is already off is not an
// error.
func (m *Manager) Destroy(ctx context.Context, host, name string) error {
	if _, err := m.runner.Execute(ctx, host, m.virsh("destroy", name)); err != nil {
		if alreadyDone(err, notRunningMessages) {
			m.logger.Debug("VM already stopped", slog.String("host", host), slog.String("vm", name))
			return nil
		}
		return fmt.Errorf("could not destroy VM %s: %w", name, err)
	}

	m.logger.Debug("destroyed VM", slog.String("host", host), slog.String("vm", name))
	return nil
}

// Undefine removes the domain definition. An unknown domain is not an error.
func (m *Manager) Undefine(ctx context.Context, host, name string) error {
	if _, err := m.runner.Execute(ctx, host, m.virsh("undefine", name)); err != nil {
		if alreadyDone(err, notDefinedMessages) {
			m.logger.Debug("VM already undefined", slog.String("host", host), slog.String("vm", name))
			return nil
		}
		return fmt.Errorf("could not undefine VM %s: %w", name, err)
	}

	m.logger.Debug("undefined VM", slog.String("host", host), slog.String("vm", name))
	return nil
}

// Exists reports whether the host knows the domain. A failing dominfo means
// no such domain; transport failures and timeouts are returned as errors.
func (m *Manager) Exists(ctx context.Context, host, name string) (bool, error) {
	_, err := m.runner.Execute(ctx, host, m.virsh("dominfo", name))
	if err == nil {
		return true, nil
	}

	var cmdErr *errdefs.CommandFailedError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return false, nil
	}
	return false, fmt.Errorf("could not look up VM %s: %w", name, err)
}

// List returns the names of every domain on the host, running or not.
func (m *Manager) List(ctx context.Context, host string) ([]string, error) {
	out, err := m.runner.Execute(ctx, host, m.virsh("list", "--all", "--name"))
	if err != nil {
		return nil, fmt.Errorf("could not list VMs: %w", err)
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
