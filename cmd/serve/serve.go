// Package serve implements the long-running mode: periodic inventory
// refreshes plus HTTP endpoints for the document, health, metrics and MCP.
package serve

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paularlott/cli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/mhagberg/towerbox/internal/cache"
	"github.com/mhagberg/towerbox/internal/config"
	"github.com/mhagberg/towerbox/internal/entity"
	"github.com/mhagberg/towerbox/internal/inventory"
	"github.com/mhagberg/towerbox/internal/log"
	"github.com/mhagberg/towerbox/internal/mcp"
	"github.com/mhagberg/towerbox/internal/netbox"
)

// Command returns the serve subcommand
func Command() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Run as a long-lived inventory service",
		Description: "Periodically rebuilds the inventory from NetBox and serves it over HTTP, with prometheus metrics and an MCP endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Listen address (e.g. :8080)",
				EnvVars: []string{"TOWERBOX_LISTEN_ADDR"},
			},
			&cli.StringFlag{
				Name:    "refresh-schedule",
				Usage:   "Cron schedule for inventory refreshes",
				EnvVars: []string{"TOWERBOX_REFRESH_SCHEDULE"},
			},
			&cli.StringFlag{
				Name:    "bearer-token",
				Usage:   "Bearer token required on the /mcp endpoint",
				EnvVars: []string{"TOWERBOX_BEARER_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to YAML config file",
				EnvVars: []string{"TOWERBOX_CONFIG"},
			},
		},
		Run: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load(&config.Config{
		ListenAddr:      cmd.GetString("addr"),
		RefreshSchedule: cmd.GetString("refresh-schedule"),
		BearerToken:     cmd.GetString("bearer-token"),
		ConfigFile:      cmd.GetString("config"),
	})
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	log.Info("Configuration loaded", "source", cfg.String())

	client, err := netbox.NewClient(cfg.HostURL, cfg.AuthToken)
	if err != nil {
		log.Error("Invalid NetBox client configuration", "error", err)
		os.Exit(1)
	}

	builder := inventory.NewBuilder(client, inventory.Options{
		Groupings: cfg.Groupings,
		Vars: entity.VarOptions{
			LegacyVars: cfg.LegacyVars,
			SSHPort:    cfg.SSHPort,
			SSHUser:    cfg.SSHUser,
		},
	})

	ref := newRefresher(builder)
	if cfg.CacheEnabled {
		store, err := cache.NewStore(cfg.CacheBackend, cfg.CacheDir)
		if err != nil {
			log.Error("Failed to initialize snapshot cache", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		ref.store = store
		log.Info("Snapshot cache enabled", "backend", cfg.CacheBackend, "dir", cfg.CacheDir)
	}

	// Initial build; a service with nothing to serve should not start
	if err := ref.refresh(ctx); err != nil {
		log.Error("Initial inventory build failed", "error", err)
		os.Exit(2)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RefreshSchedule, func() {
		if err := ref.refresh(context.Background()); err != nil {
			log.Error("Scheduled refresh failed", "error", err)
		}
	}); err != nil {
		log.Error("Invalid refresh schedule", "schedule", cfg.RefreshSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	mcpServer := mcp.NewServer(ref, cfg.BearerToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/inventory", ref.handleInventory)
	mux.HandleFunc("/healthz", ref.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/mcp", mcpServer.GetHTTPHandler())

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("Starting towerbox server", "addr", cfg.ListenAddr, "schedule", cfg.RefreshSchedule)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
