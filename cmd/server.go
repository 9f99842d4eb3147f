package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/terabiome/archdev/internal/config"
	"github.com/terabiome/archdev/internal/handler"
	"github.com/terabiome/archdev/internal/routes"
)

// runServer starts the HTTP API server
func runServer(ctx context.Context, cfg *config.Config, log *slog.Logger, address string) error {
	log.Info("initializing HTTP server", slog.String("address", address))

	svc, err := initServices(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	vmHandler := handler.NewVirtualMachine(svc.vms, log)
	systemHandler := handler.NewSystem(svc.hosts, log)

	router := routes.SetupMux(vmHandler, systemHandler, routes.NewRegistry())

	// No write timeout: a create copies a multi-gigabyte image and waits
	// for the hypervisor, bounded by dispatch_timeout per command.
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", slog.String("address", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
		log.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Info("HTTP server stopped")
		return nil
	}
}
