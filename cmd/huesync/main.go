// huesync - Philips Hue bridge synchronisation daemon
//
// This is the main entry point for huesync. The daemon mirrors a
// Philips Hue bridge into a hierarchical state tree and keeps the two
// sides converged:
//   - Periodic full-state polling over the bridge's v1 REST API
//   - Retained MQTT topics for every light, group, scene and sensor
//   - Write-back of user commands with later-wins coalescing
//   - Optional REST API for browsing the tree and pairing
//
// Run with -pair to register with a bridge and obtain an API username.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/zefau/huesync/migrations"

	"github.com/zefau/huesync/internal/api"
	"github.com/zefau/huesync/internal/bridges/hue"
	"github.com/zefau/huesync/internal/infrastructure/config"
	"github.com/zefau/huesync/internal/infrastructure/database"
	"github.com/zefau/huesync/internal/infrastructure/logging"
	"github.com/zefau/huesync/internal/infrastructure/mqtt"
	"github.com/zefau/huesync/internal/tree"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	configFlag := flag.String("config", "", "path to configuration file (overrides HUESYNC_CONFIG)")
	pairFlag := flag.Bool("pair", false, "register with the bridge and print the issued username")
	versionFlag := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("huesync %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configPath := *configFlag
	if configPath == "" {
		configPath = getConfigPath()
	}

	var err error
	if *pairFlag {
		err = runPairing(ctx, configPath)
	} else {
		err = run(ctx, configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual daemon logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting huesync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// The state tree is the hub everything else hangs off: the sync
	// engine writes bridge state into it, the mirror replicates it to
	// MQTT, the repository persists it and the API reads it.
	store := tree.NewMemoryStore()

	// Open database and restore the previous tree snapshot (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		repo := tree.NewRepository(db, log)

		// Restore before attaching the observer so replayed rows are not
		// immediately re-queued for persistence.
		restored, restoreErr := repo.Restore(ctx, store)
		if restoreErr != nil {
			return fmt.Errorf("restoring state tree: %w", restoreErr)
		}
		log.Info("state tree restored", "nodes", restored)
		store.OnChange(repo.Observer())

		// The persister runs on its own context so it keeps draining
		// after the shutdown signal; the deferred cancel stops it only
		// once every producer above it in the defer chain has stopped.
		persistCtx, persistCancel := context.WithCancel(context.Background())
		var persistDone sync.WaitGroup
		persistDone.Add(1)
		go func() {
			defer persistDone.Done()
			repo.Run(persistCtx)
		}()
		defer func() {
			log.Info("flushing state tree to database")
			persistCancel()
			persistDone.Wait()
		}()
	} else {
		log.Info("database disabled, state tree is in-memory only")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetLogger(log)

	// Mirror the tree onto MQTT and accept set messages back
	mirror := tree.NewMirror(store, mqttClient, cfg.MQTT, log)
	if err := mirror.Start(); err != nil {
		return fmt.Errorf("starting tree mirror: %w", err)
	}
	log.Info("tree mirror started", "prefix", cfg.MQTT.TopicPrefix)

	// Retained topics published while the broker was unreachable are
	// lost; a full resync on reconnect repairs them.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing tree")
		mirror.Resync()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Create the Hue bridge client and start the sync engine
	hueClient, err := hue.NewClient(hue.ClientConfig{
		Host:     cfg.Bridge.Host,
		Port:     cfg.Bridge.Port,
		Username: cfg.Bridge.Username,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}

	bridge, err := hue.NewBridge(hue.BridgeOptions{
		Config:  cfg,
		Store:   store,
		Client:  hueClient,
		Health:  mqttClient,
		Logger:  log,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating Hue bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting Hue bridge: %w", err)
	}
	defer func() {
		log.Info("stopping Hue bridge")
		bridge.Stop()
	}()
	log.Info("Hue bridge started",
		"bridge", hueClient.Address(),
		"interval", cfg.GetSyncInterval(),
	)

	// Start REST API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log,
			Store:      store,
			Bridge:     bridge,
			Pairer:     hueClient,
			Devicetype: cfg.Bridge.Devicetype,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server listening",
			"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		)
	} else {
		log.Info("API server disabled")
	}

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Hue bridge
	// 3. MQTT
	// 4. Tree persister flush (if enabled)
	// 5. Database (if enabled)

	log.Info("huesync stopped")
	return nil
}

// runPairing registers with the bridge and prints the issued username.
// The bridge only accepts a registration within ~30 seconds of its link
// button being pressed, so failure here is part of the normal flow.
//
// Parameters:
//   - ctx: Context for cancellation
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil when a username was issued
func runPairing(ctx context.Context, configPath string) error {
	cfg, err := config.LoadForPairing(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := hue.NewClient(hue.ClientConfig{
		Host: cfg.Bridge.Host,
		Port: cfg.Bridge.Port,
	})
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}

	fmt.Printf("Registering with bridge %s as %q...\n", client.Address(), cfg.Bridge.Devicetype)

	username, err := client.Register(ctx, cfg.Bridge.Devicetype)
	if err != nil {
		if errors.Is(err, hue.ErrBridgeResponse) {
			fmt.Println("The bridge refused the registration.")
			fmt.Println("Press the link button on the bridge, then run -pair again within 30 seconds.")
		}
		return fmt.Errorf("registering with bridge: %w", err)
	}

	fmt.Printf("Bridge issued username: %s\n", username)
	fmt.Println("Add it to the configuration as bridge.username (or set HUESYNC_BRIDGE_USERNAME).")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HUESYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HUESYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (may be nil if disabled)
//   - mqttClient: MQTT client to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	// Check database (if enabled)
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Bridge reachability is deliberately not gated here: the sync loop
	// retries on its own schedule and the health reporter surfaces the
	// outcome over MQTT.

	return nil
}
