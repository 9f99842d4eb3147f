package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/terabiome/archdev/internal/fleet"
)

// DomainLister lists the domains a host's hypervisor knows.
type DomainLister interface {
	List(ctx context.Context, host string) ([]string, error)
}

// HostStatus is the outcome of probing one host.
type HostStatus struct {
	Host    fleet.HostRecord
	Domains int
	Latency time.Duration
	Err     error
}

// FleetService reports on the reachability of fleet hosts.
type FleetService struct {
	fleet       *fleet.Directory
	lister      DomainLister
	concurrency int
	logger      *slog.Logger
}

func NewFleetService(dir *fleet.Directory, lister DomainLister, concurrency int, logger *slog.Logger) *FleetService {
	if concurrency < 1 {
		concurrency = DefaultListConcurrency
	}
	return &FleetService{
		fleet:       dir,
		lister:      lister,
		concurrency: concurrency,
		logger:      logger.With(slog.String("service", "fleet")),
	}
}

// Status probes every host through its hypervisor, in inventory order.
func (s *FleetService) Status(ctx context.Context) []HostStatus {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "FleetStatus")
	defer span.End()

	hosts := s.fleet.All()
	statuses := make([]HostStatus, len(hosts))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, host := range hosts {
		g.Go(func() error {
			start := time.Now()
			domains, err := s.lister.List(ctx, host.ID)
			statuses[i] = HostStatus{
				Host:    host,
				Domains: len(domains),
				Latency: time.Since(start),
				Err:     err,
			}
			if err != nil {
				s.logger.Warn("host probe failed",
					slog.String("host", host.ID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	reachable := 0
	for _, st := range statuses {
		if st.Err == nil {
			reachable++
		}
	}
	span.SetAttributes(attribute.Int("fleet.hosts", len(hosts)), attribute.Int("fleet.reachable", reachable))
	return statuses
}
