package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/terabiome/archdev/internal/config"
	"github.com/terabiome/archdev/pkg/logger"
	"github.com/terabiome/archdev/pkg/telemetry"
)

// app holds what every command needs once flags are parsed.
type app struct {
	cfg *config.Config
	log *slog.Logger
	tel *telemetry.Telemetry
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	a := &app{}

	go func() {
		sig := <-sigChan
		if a.log != nil {
			a.log.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		cancel()
	}()

	cliApp := &cli.App{
		Name:                 "archdev",
		Usage:                "Provision disposable development VMs across a fleet of libvirt hosts",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to archdev.yaml (default: /etc/archdev or the working directory)",
				EnvVars: []string{"ARCHDEV_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "api",
				Usage: "URL of a running archdev server; vm and fleet commands then go through its HTTP API (default: api_url)",
			},
		},
		Before: func(cliCtx *cli.Context) error {
			if err := a.setup(cliCtx.String("config")); err != nil {
				return err
			}
			if apiURL := cliCtx.String("api"); apiURL != "" {
				a.cfg.APIURL = apiURL
			}
			return nil
		},
		After: func(cliCtx *cli.Context) error {
			a.shutdown()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start HTTP API server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "address",
						Aliases: []string{"a"},
						Usage:   "Server address (default: listen_address from the configuration)",
					},
				},
				Action: func(cliCtx *cli.Context) error {
					address := cliCtx.String("address")
					if address == "" {
						address = a.cfg.ListenAddress
					}
					return runServer(ctx, a.cfg, a.log, address)
				},
			},
			{
				Name:  "vm",
				Usage: "Manage development VMs",
				Action: func(c *cli.Context) error {
					fmt.Println("use subcommand instead:")
					for _, subcmd := range c.Command.Subcommands {
						fmt.Printf("\t - %s %s %s\n", c.App.Name, c.Command.Name, subcmd.Name)
					}
					return nil
				},
				Subcommands: []*cli.Command{
					{
						Name:  "create",
						Usage: "Create and start a VM on a fleet host",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "ram", Usage: "Memory, e.g. 8G", Required: true},
							&cli.StringFlag{Name: "storage", Usage: "Disk size, e.g. 50G", Required: true},
							&cli.StringFlag{Name: "host", Usage: "Fleet host ID", Required: true},
						},
						Action: func(cliCtx *cli.Context) error {
							return runCreate(ctx, a.cfg, a.log, cliCtx.String("ram"), cliCtx.String("storage"), cliCtx.String("host"))
						},
					},
					{
						Name:  "list",
						Usage: "List VMs on every reachable host",
						Action: func(cliCtx *cli.Context) error {
							return runList(ctx, a.cfg, a.log)
						},
					},
					{
						Name:      "kill",
						Usage:     "Tear down a VM and release its ports",
						ArgsUsage: "NAME",
						Action: func(cliCtx *cli.Context) error {
							name := cliCtx.Args().First()
							if name == "" {
								return fmt.Errorf("usage: %s vm kill NAME", cliCtx.App.Name)
							}
							return runKill(ctx, a.cfg, a.log, name)
						},
					},
				},
			},
			{
				Name:  "fleet",
				Usage: "Inspect fleet hosts",
				Subcommands: []*cli.Command{
					{
						Name:  "status",
						Usage: "Probe every host and report reachability",
						Action: func(cliCtx *cli.Context) error {
							return runFleetStatus(ctx, a.cfg, a.log)
						},
					},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		if a.log != nil {
			a.log.Error("application error", slog.String("error", err.Error()))
		} else {
			slog.Error("application error", slog.String("error", err.Error()))
		}
		a.shutdown()
		os.Exit(1)
	}
}

func (a *app) setup(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	a.cfg = cfg

	a.log = logger.New(cfg.LogLevel, cfg.LogFormat)
	a.log.Debug("archdev starting",
		slog.String("log_level", cfg.LogLevel),
		slog.String("log_format", cfg.LogFormat),
		slog.Bool("telemetry_enabled", cfg.TelemetryEnabled),
	)

	if cfg.TelemetryEnabled {
		tel, err := telemetry.Initialize("archdev")
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.tel = tel
		a.log.Info("telemetry initialized")
	} else {
		a.log.Debug("telemetry disabled")
	}
	return nil
}

func (a *app) shutdown() {
	if a.tel == nil {
		return
	}
	tel := a.tel
	a.tel = nil

	a.log.Info("shutting down telemetry")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		a.log.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
	}
}
