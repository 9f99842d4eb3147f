package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/terabiome/archdev/internal/handler"
)

// Router wraps http.ServeMux and provides route setup
type Router struct {
	*http.ServeMux
	metrics *httpMetrics
}

// SetupMux creates and configures the main router. reg receives the HTTP
// metrics and is exposed at /metrics.
func SetupMux(vmHandler *handler.VirtualMachine, systemHandler *handler.System, reg *prometheus.Registry) *Router {
	router := Router{ServeMux: http.NewServeMux(), metrics: newHTTPMetrics(reg)}

	router.handle("POST /create", "/create", vmHandler.Create)
	router.handle("GET /list", "/list", vmHandler.List)
	router.handle("POST /kill", "/kill", vmHandler.Kill)
	router.handle("GET /health", "/health", systemHandler.Health)
	router.handle("GET /fleet", "/fleet", systemHandler.FleetStatus)

	router.ServeMux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &router
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (router *Router) handle(pattern, route string, h http.HandlerFunc) {
	router.ServeMux.Handle(pattern, router.metrics.instrument(route, h))
}
