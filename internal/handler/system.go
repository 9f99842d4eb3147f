package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/terabiome/archdev/internal/adapter"
	"github.com/terabiome/archdev/internal/api"
	"github.com/terabiome/archdev/internal/service"
)

// FleetProber reports per-host reachability.
type FleetProber interface {
	Status(ctx context.Context) []service.HostStatus
}

// System handles health and fleet requests
type System struct {
	fleet  FleetProber
	logger *slog.Logger
}

func NewSystem(fleet FleetProber, logger *slog.Logger) *System {
	return &System{
		fleet:  fleet,
		logger: logger,
	}
}

// Health handles GET /health
func (h *System) Health(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// FleetStatus handles GET /fleet. Unreachable hosts are reported, not failed.
func (h *System) FleetStatus(writer http.ResponseWriter, request *http.Request) {
	statuses := h.fleet.Status(request.Context())
	writeJSON(writer, http.StatusOK, adapter.AdaptHostStatusesToAPI(statuses))
}
