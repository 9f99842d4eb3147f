package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/terabiome/archdev/internal/config"
)

// runFleetStatus probes every host and prints one line per host.
func runFleetStatus(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	b, err := newBackend(cfg, log)
	if err != nil {
		return err
	}

	statuses, err := b.FleetStatus(ctx)
	if err != nil {
		return fmt.Errorf("unable to probe fleet: %w", err)
	}

	unreachable := 0
	for _, s := range statuses {
		if !s.Reachable {
			unreachable++
			fmt.Printf("%-16s %-15s unreachable  %s\n", s.Host, s.Address, s.Error)
			continue
		}
		fmt.Printf("%-16s %-15s ok %4dms      %d domains\n", s.Host, s.Address, s.LatencyMS, s.Domains)
	}

	if unreachable > 0 {
		return fmt.Errorf("%d of %d hosts unreachable", unreachable, len(statuses))
	}
	return nil
}
