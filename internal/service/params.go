package service

import (
	"context"

	"github.com/terabiome/archdev/internal/ports"
)

// CreateVMParams contains transport-agnostic parameters for creating a sandbox VM.
type CreateVMParams struct {
	RAM     string
	Storage string
	Host    string
}

// VM is a sandbox VM as seen by the controller.
type VM struct {
	Name    string
	Host    string
	Domain  string
	SSHPort int
	VNCPort int
	State   State
}

// StepResult is the outcome of one teardown step.
type StepResult struct {
	Step    string
	Skipped bool
	Err     error
}

// KillResult reports every teardown step attempted for a VM.
type KillResult struct {
	Name  string
	Host  string
	State State
	Steps []StepResult
}

// FailedSteps names the steps that did not succeed, in execution order.
func (r *KillResult) FailedSteps() []string {
	var failed []string
	for _, step := range r.Steps {
		if step.Err != nil {
			failed = append(failed, step.Step)
		}
	}
	return failed
}

// PortRegistry hands out and tracks per-host port reservations.
type PortRegistry interface {
	Allocate(ctx context.Context, host, name string) (ports.Reservation, error)
	Load(ctx context.Context, host, name string) (ports.Reservation, error)
	Delete(ctx context.Context, host, name string) error
	List(ctx context.Context, host string) ([]ports.Reservation, error)
}

// DiskManager prepares and removes VM disk images.
type DiskManager interface {
	Provision(ctx context.Context, host, name string, sizeMiB int64) error
	Remove(ctx context.Context, host, name string) error
}

// Hypervisor controls domains on a host.
type Hypervisor interface {
	Define(ctx context.Context, host, name, domainXML string) error
	Start(ctx context.Context, host, name string) error
	Destroy(ctx context.Context, host, name string) error
	Undefine(ctx context.Context, host, name string) error
	Exists(ctx context.Context, host, name string) (bool, error)
}

// DescriptorBuilder renders the domain definition of a VM.
type DescriptorBuilder interface {
	Build(name, memory string, vncPort int) (string, error)
}

// NameScheme generates and recognises VM names.
type NameScheme interface {
	Generate(ram, storage string) (string, error)
	Match(name string) bool
}
