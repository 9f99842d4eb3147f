package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/terabiome/archdev/internal/errdefs"
	"github.com/terabiome/archdev/internal/fleet"
	"github.com/terabiome/archdev/internal/quantity"
)

const (
	instrumentationName    = "archdev/service"
	DefaultListConcurrency = 4
)

// Dependencies are the collaborators of the controller.
type Dependencies struct {
	Fleet      *fleet.Directory
	Registry   PortRegistry
	Disks      DiskManager
	Hypervisor Hypervisor
	Builder    DescriptorBuilder
	Names      NameScheme
}

// VMService provides transport-agnostic VM operations.
type VMService struct {
	fleet           *fleet.Directory
	registry        PortRegistry
	disks           DiskManager
	hypervisor      Hypervisor
	builder         DescriptorBuilder
	names           NameScheme
	listConcurrency int
	logger          *slog.Logger

	vmCreateCounter  metric.Int64Counter
	vmKillCounter    metric.Int64Counter
	vmCreateDuration metric.Float64Histogram
	vmKillDuration   metric.Float64Histogram
	listHostFailures metric.Int64Counter
	teardownFailures metric.Int64Counter
}

// NewVMService creates a new VMService. listConcurrency bounds the hosts
// queried at once by List.
func NewVMService(deps Dependencies, listConcurrency int, logger *slog.Logger) *VMService {
	if listConcurrency < 1 {
		listConcurrency = DefaultListConcurrency
	}
	meter := otel.Meter(instrumentationName)

	return &VMService{
		fleet:           deps.Fleet,
		registry:        deps.Registry,
		disks:           deps.Disks,
		hypervisor:      deps.Hypervisor,
		builder:         deps.Builder,
		names:           deps.Names,
		listConcurrency: listConcurrency,
		logger:          logger.With(slog.String("service", "vm")),

		vmCreateCounter:  int64Counter(meter, logger, "archdev.vm.create", "Number of VM create operations"),
		vmKillCounter:    int64Counter(meter, logger, "archdev.vm.kill", "Number of VM kill operations"),
		vmCreateDuration: float64Histogram(meter, logger, "archdev.vm.create.duration", "Duration of VM create operations"),
		vmKillDuration:   float64Histogram(meter, logger, "archdev.vm.kill.duration", "Duration of VM kill operations"),
		listHostFailures: int64Counter(meter, logger, "archdev.vm.list.host_failures", "Hosts omitted from a VM listing"),
		teardownFailures: int64Counter(meter, logger, "archdev.vm.teardown.failures", "Failed teardown steps"),
	}
}

func int64Counter(meter metric.Meter, logger *slog.Logger, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		logger.Warn("failed to create metric", slog.String("metric", name), slog.String("error", err.Error()))
		return noop.Int64Counter{}
	}
	return counter
}

func float64Histogram(meter metric.Meter, logger *slog.Logger, name, description string) metric.Float64Histogram {
	histogram, err := meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create metric", slog.String("metric", name), slog.String("error", err.Error()))
		return noop.Float64Histogram{}
	}
	return histogram
}

func status(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}

// Create provisions and starts a sandbox VM on the requested host.
func (s *VMService) Create(ctx context.Context, params CreateVMParams) (*VM, error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "CreateVM")
	defer span.End()

	span.SetAttributes(
		attribute.String("vm.host", params.Host),
		attribute.String("vm.ram", params.RAM),
		attribute.String("vm.storage", params.Storage),
	)

	startTime := time.Now()
	vm, err := s.create(ctx, params)

	attrs := metric.WithAttributes(status(err))
	s.vmCreateCounter.Add(ctx, 1, attrs)
	s.vmCreateDuration.Record(ctx, time.Since(startTime).Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("vm.name", vm.Name))
	return vm, nil
}

func (s *VMService) create(ctx context.Context, params CreateVMParams) (*VM, error) {
	host, diskMiB, err := s.validateCreate(params)
	if err != nil {
		return nil, err
	}

	name, err := s.names.Generate(params.RAM, params.Storage)
	if err != nil {
		return nil, errdefs.Validation("invalid vm size", err)
	}

	vm := &VM{Name: name, Host: host.ID, Domain: host.Domain, State: StateRequested}
	log := s.logger.With(slog.String("vm", name), slog.String("host", host.ID))
	s.advance(log, vm, StateProvisioning)

	reservation, err := s.registry.Allocate(ctx, host.ID, name)
	if err != nil {
		s.advance(log, vm, StateFailed)
		log.Error("failed to allocate ports", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to allocate ports for %s: %w", name, err)
	}
	vm.SSHPort = reservation.SSHPort
	vm.VNCPort = reservation.VNCPort

	// undo holds the compensating steps for everything done so far.
	undo := []teardownStep{s.releasePortsStep(vm)}
	fail := func(stage string, err error) (*VM, error) {
		s.advance(log, vm, StateFailed)
		log.Error("create failed, rolling back",
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
		s.rollback(ctx, log, undo)
		return nil, fmt.Errorf("failed to %s for %s: %w", stage, name, err)
	}

	// A failed copy can leave a partial image behind, so the removal is
	// registered before provisioning.
	undo = append(undo, s.removeImageStep(vm))
	if err := s.disks.Provision(ctx, host.ID, name, diskMiB); err != nil {
		return fail("provision disk", err)
	}

	domainXML, err := s.builder.Build(name, params.RAM, vm.VNCPort)
	if err != nil {
		return fail("build domain definition", err)
	}

	if err := s.hypervisor.Define(ctx, host.ID, name, domainXML); err != nil {
		return fail("define domain", err)
	}
	undo = append(undo, s.undefineStep(vm))

	if err := s.hypervisor.Start(ctx, host.ID, name); err != nil {
		return fail("start domain", err)
	}

	s.advance(log, vm, StateRunning)
	log.Info("VM created",
		slog.Int("ssh_port", vm.SSHPort),
		slog.Int("vnc_port", vm.VNCPort),
	)
	return vm, nil
}

func (s *VMService) validateCreate(params CreateVMParams) (fleet.HostRecord, int64, error) {
	var missing []string
	if strings.TrimSpace(params.RAM) == "" {
		missing = append(missing, "ram")
	}
	if strings.TrimSpace(params.Storage) == "" {
		missing = append(missing, "storage")
	}
	if strings.TrimSpace(params.Host) == "" {
		missing = append(missing, "host")
	}
	if len(missing) > 0 {
		return fleet.HostRecord{}, 0, errdefs.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}

	host, err := s.fleet.Resolve(params.Host)
	if err != nil {
		return fleet.HostRecord{}, 0, errdefs.Validation("unknown host", err)
	}

	if _, err := quantity.ParseMiB(params.RAM); err != nil {
		return fleet.HostRecord{}, 0, errdefs.Validation("invalid ram", err)
	}

	diskMiB, err := quantity.ParseMiB(params.Storage)
	if err != nil {
		return fleet.HostRecord{}, 0, errdefs.Validation("invalid storage", err)
	}

	return host, diskMiB, nil
}

// List returns the VMs holding port reservations on every reachable host.
// Hosts that fail to answer are logged and left out.
func (s *VMService) List(ctx context.Context) ([]VM, error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "ListVMs")
	defer span.End()

	hosts := s.fleet.All()
	perHost := make([][]VM, len(hosts))

	var g errgroup.Group
	g.SetLimit(s.listConcurrency)
	for i, host := range hosts {
		g.Go(func() error {
			vms, err := s.listHost(ctx, host)
			if err != nil {
				s.logger.Warn("skipping unreachable host in listing",
					slog.String("host", host.ID),
					slog.String("error", err.Error()),
				)
				s.listHostFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("host", host.ID)))
				return nil
			}
			perHost[i] = vms
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []VM
	for _, vms := range perHost {
		all = append(all, vms...)
	}
	span.SetAttributes(attribute.Int("vm.count", len(all)))
	return all, nil
}

func (s *VMService) listHost(ctx context.Context, host fleet.HostRecord) ([]VM, error) {
	reservations, err := s.registry.List(ctx, host.ID)
	if err != nil {
		return nil, err
	}

	vms := make([]VM, 0, len(reservations))
	for _, r := range reservations {
		if !s.names.Match(r.Name) {
			continue
		}
		vms = append(vms, VM{
			Name:    r.Name,
			Host:    host.ID,
			Domain:  host.Domain,
			SSHPort: r.SSHPort,
			VNCPort: r.VNCPort,
		})
	}
	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
	return vms, nil
}

// Kill tears down the named VM on whichever host holds it. Every teardown
// step is attempted; the result tells which ones failed.
func (s *VMService) Kill(ctx context.Context, name string) (*KillResult, error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "KillVM")
	defer span.End()

	span.SetAttributes(attribute.String("vm.name", name))

	startTime := time.Now()
	result, err := s.kill(ctx, name)

	attrs := metric.WithAttributes(status(err))
	s.vmKillCounter.Add(ctx, 1, attrs)
	s.vmKillDuration.Record(ctx, time.Since(startTime).Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if failed := result.FailedSteps(); len(failed) > 0 {
		span.SetAttributes(attribute.StringSlice("vm.teardown.failed", failed))
	}
	return result, nil
}

func (s *VMService) kill(ctx context.Context, name string) (*KillResult, error) {
	if !s.names.Match(name) {
		return nil, errdefs.Validationf("invalid vm name %q", name)
	}

	host, defined, err := s.locate(ctx, name)
	if err != nil {
		return nil, err
	}

	vm := &VM{Name: name, Host: host.ID, Domain: host.Domain, State: StateRunning}
	log := s.logger.With(slog.String("vm", name), slog.String("host", host.ID))
	s.advance(log, vm, StateTerminating)

	steps := []teardownStep{
		s.destroyStep(vm),
		s.undefineStep(vm),
		s.removeImageStep(vm),
		s.releasePortsStep(vm),
	}
	if !defined {
		steps[0].skip = true
		steps[1].skip = true
	}

	results := s.runSteps(ctx, log, steps)
	result := &KillResult{Name: name, Host: host.ID, Steps: results}

	if failed := result.FailedSteps(); len(failed) > 0 {
		s.advance(log, vm, StateFailed)
		log.Warn("VM terminated with failed teardown steps", slog.String("failed", strings.Join(failed, ",")))
	} else {
		s.advance(log, vm, StateTerminated)
		log.Info("VM terminated")
	}
	result.State = vm.State
	return result, nil
}

// locate scans hosts in inventory order. A host holds the VM when its
// hypervisor knows the domain or it keeps a reservation for the name.
// Hosts that cannot be probed are skipped.
func (s *VMService) locate(ctx context.Context, name string) (fleet.HostRecord, bool, error) {
	for _, host := range s.fleet.All() {
		defined, err := s.hypervisor.Exists(ctx, host.ID, name)
		if err != nil {
			s.logger.Warn("skipping host during lookup",
				slog.String("host", host.ID),
				slog.String("vm", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if defined {
			return host, true, nil
		}

		_, err = s.registry.Load(ctx, host.ID, name)
		switch {
		case err == nil:
			return host, false, nil
		case errors.Is(err, errdefs.ErrReservationNotFound):
		default:
			s.logger.Warn("failed to read reservation during lookup",
				slog.String("host", host.ID),
				slog.String("vm", name),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := ctx.Err(); err != nil {
		return fleet.HostRecord{}, false, err
	}
	return fleet.HostRecord{}, false, errdefs.VMNotFound(name)
}

func (s *VMService) advance(log *slog.Logger, vm *VM, to State) {
	from := vm.State
	if err := vm.transition(to); err != nil {
		log.Error("state machine violation", slog.String("error", err.Error()))
		return
	}
	log.Debug("state changed", slog.String("from", string(from)), slog.String("to", string(to)))
}
