package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paularlott/cli"
	"github.com/paularlott/cli/env"

	"github.com/mhagberg/towerbox/cmd/serve"
	"github.com/mhagberg/towerbox/internal/cache"
	"github.com/mhagberg/towerbox/internal/config"
	"github.com/mhagberg/towerbox/internal/entity"
	"github.com/mhagberg/towerbox/internal/inventory"
	"github.com/mhagberg/towerbox/internal/log"
	"github.com/mhagberg/towerbox/internal/netbox"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes: 0 success or help, 1 configuration error, 2 fetch/build failure.
const (
	exitConfigError = 1
	exitFetchError  = 2
)

func main() {
	// Load .env file if it exists
	env.Load()

	// Initialize structured logging
	log.Configure("info", "")

	rootCmd := &cli.Command{
		Name:        "towerbox",
		Version:     version,
		Usage:       "NetBox dynamic inventory for Ansible Tower",
		Description: "Builds an Ansible dynamic inventory from NetBox devices and virtual machines, grouped by site and platform",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "list",
				Usage: "Dump the full inventory as JSON on stdout",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Dump the variables of a single host as JSON on stdout",
			},
			&cli.BoolFlag{
				Name:  "refresh-cache",
				Usage: "Bypass the snapshot cache and fetch fresh data",
			},
			&cli.BoolFlag{
				Name:  "legacy-vars",
				Usage: "Emit the historical ansible_port/ansible_user hostvars",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to YAML config file",
				EnvVars: []string{"TOWERBOX_CONFIG"},
			},
			&cli.StringFlag{
				Name:         "log-level",
				Usage:        "Log level (trace, debug, info, warn, error)",
				DefaultValue: "info",
				EnvVars:      []string{"TOWERBOX_LOG_LEVEL"},
				Global:       true,
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (console, json)",
				EnvVars: []string{"TOWERBOX_LOG_FORMAT"},
				Global:  true,
			},
		},
		PreRun: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			log.Configure(cmd.GetString("log-level"), cmd.GetString("log-format"))
			return ctx, nil
		},
		Run: runInventory,
		Commands: []*cli.Command{
			serve.Command(),
		},
	}

	if err := rootCmd.Execute(context.Background()); err != nil {
		log.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// runInventory implements the dynamic-inventory script contract: --list
// dumps the whole document, --host dumps one host's vars, and with
// neither flag only usage text is printed and no network activity occurs.
func runInventory(ctx context.Context, cmd *cli.Command) error {
	wantList := cmd.GetBool("list")
	wantHost := cmd.GetString("host")
	if !wantList && wantHost == "" {
		fmt.Println("Usage: towerbox --list | --host <name>")
		fmt.Println("Run 'towerbox --help' for all options.")
		return nil
	}

	cfg := config.Load(&config.Config{
		ConfigFile: cmd.GetString("config"),
		LegacyVars: cmd.GetBool("legacy-vars"),
	})
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(exitConfigError)
	}

	doc, err := loadDocument(ctx, cfg, cmd.GetBool("refresh-cache"))
	if err != nil {
		log.Error("Building inventory failed", "error", err)
		os.Exit(exitFetchError)
	}

	var out any = doc
	if wantHost != "" {
		out = doc.HostVars(wantHost)
	}
	data, err := json.Marshal(out)
	if err != nil {
		log.Error("Serializing inventory failed", "error", err)
		os.Exit(exitFetchError)
	}
	fmt.Println(string(data))
	return nil
}

// loadDocument returns the inventory document, serving a cached snapshot
// when the cache is enabled and fresh enough, otherwise fetching from
// NetBox and (when enabled) replacing the snapshot.
func loadDocument(ctx context.Context, cfg *config.Config, forceRefresh bool) (*inventory.Document, error) {
	var store cache.Store
	if cfg.CacheEnabled {
		var err error
		store, err = cache.NewStore(cfg.CacheBackend, cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot cache: %w", err)
		}
		defer store.Close()

		if !forceRefresh {
			if doc := cachedDocument(store, cfg); doc != nil {
				return doc, nil
			}
		}
	}

	client, err := netbox.NewClient(cfg.HostURL, cfg.AuthToken)
	if err != nil {
		return nil, err
	}
	builder := inventory.NewBuilder(client, inventory.Options{
		Groupings: cfg.Groupings,
		Vars: entity.VarOptions{
			LegacyVars: cfg.LegacyVars,
			SSHPort:    cfg.SSHPort,
			SSHUser:    cfg.SSHUser,
		},
	})

	doc, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	if store != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		if _, err := store.Save(data); err != nil {
			log.Warn("Saving snapshot failed", "error", err)
		}
	}
	return doc, nil
}

// cachedDocument returns the latest snapshot's document when it is
// younger than the TTL, nil otherwise.
func cachedDocument(store cache.Store, cfg *config.Config) *inventory.Document {
	snap, err := store.Latest()
	if err != nil {
		if !errors.Is(err, cache.ErrNoSnapshot) {
			log.Warn("Reading snapshot cache failed", "error", err)
		}
		return nil
	}
	if snap.Age() > cfg.CacheTTL {
		log.Debug("Snapshot too old", "age", snap.Age(), "ttl", cfg.CacheTTL)
		return nil
	}

	doc := inventory.NewDocument()
	if err := json.Unmarshal(snap.Document, doc); err != nil {
		log.Warn("Decoding cached snapshot failed", "error", err)
		return nil
	}
	log.Debug("Serving cached snapshot", "id", snap.ID, "age", snap.Age())
	return doc
}
