package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/terabiome/archdev/internal/api"
	"github.com/terabiome/archdev/internal/config"
)

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal response: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

// connectTarget is the name a user reaches the VM's host by: the host ID
// under the inventory domain, else the host address, else the bare ID.
func connectTarget(host, domain, address string) string {
	switch {
	case domain != "":
		return host + "." + strings.TrimPrefix(domain, ".")
	case address != "":
		return address
	default:
		return host
	}
}

func printConnectHints(w io.Writer, user, target string, sshPort, vncPort int) {
	login := target
	if user != "" {
		login = user + "@" + target
	}
	fmt.Fprintf(w, "ssh: ssh -p %d %s\n", sshPort, login)
	fmt.Fprintf(w, "vnc: ssh -N -L %d:127.0.0.1:%d %s, then connect to localhost:%d\n", vncPort, vncPort, target, vncPort)
}

func runCreate(ctx context.Context, cfg *config.Config, log *slog.Logger, ram, storage, host string) error {
	b, err := newBackend(cfg, log)
	if err != nil {
		return err
	}

	log.Info("creating VM", slog.String("host", host), slog.String("ram", ram), slog.String("storage", storage))

	vm, err := b.Create(ctx, api.CreateVMRequest{RAM: ram, Storage: storage, Host: host})
	if err != nil {
		return fmt.Errorf("unable to create VM: %w", err)
	}

	if err := printJSON(vm); err != nil {
		return err
	}

	var address string
	if local, ok := b.(*localBackend); ok {
		address = local.hostAddress(vm.Host)
	}
	printConnectHints(os.Stderr, cfg.VMUser, connectTarget(vm.Host, vm.Domain, address), vm.SSHPort, vm.VNCPort)
	return nil
}

func runList(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	b, err := newBackend(cfg, log)
	if err != nil {
		return err
	}

	vms, err := b.List(ctx)
	if err != nil {
		return fmt.Errorf("unable to list VMs: %w", err)
	}
	return printJSON(vms)
}

func runKill(ctx context.Context, cfg *config.Config, log *slog.Logger, name string) error {
	b, err := newBackend(cfg, log)
	if err != nil {
		return err
	}

	result, err := b.Kill(ctx, name)
	if err != nil {
		return fmt.Errorf("unable to kill VM: %w", err)
	}

	if err := printJSON(result); err != nil {
		return err
	}
	if len(result.FailedSteps) > 0 {
		return fmt.Errorf("teardown of %s incomplete, failed steps: %s", name, strings.Join(result.FailedSteps, ", "))
	}
	return nil
}
