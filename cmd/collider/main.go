// cmd/collider/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/go-collider/pkg/collision"
	"github.com/opd-ai/go-collider/pkg/config"
	"github.com/opd-ai/go-collider/pkg/engine"
	"github.com/opd-ai/go-collider/pkg/event"
	"github.com/opd-ai/go-collider/pkg/feed"
	"github.com/opd-ai/go-collider/pkg/health"
	"github.com/opd-ai/go-collider/pkg/logging"
)

// httpAddrEnv names the variable that enables the HTTP server.
const httpAddrEnv = "COLLIDER_HTTP_ADDR"

// options holds the parsed command line
type options struct {
	configPath    string
	createDefault bool
	ticks         int
	httpAddr      string

	policy  string
	workers int
	blobs   int
	seed    uint64

	// given records the flags present on the command line
	given map[string]bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{given: make(map[string]bool)}

	fs := flag.NewFlagSet("collider", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "collider.json", "Path to configuration file (.json, .yaml or .yml)")
	fs.BoolVar(&o.createDefault, "default", false, "Create default configuration file and exit")
	fs.IntVar(&o.ticks, "ticks", 0, "Number of ticks to run, 0 runs until interrupted")
	fs.StringVar(&o.policy, "policy", "", "Collision policy: mark or remove")
	fs.IntVar(&o.workers, "workers", 0, "Goroutines used for collision queries")
	fs.IntVar(&o.blobs, "blobs", -1, "Initial number of blobs")
	fs.Uint64Var(&o.seed, "seed", 0, "Random seed, 0 picks one")
	fs.StringVar(&o.httpAddr, "http", os.Getenv(httpAddrEnv), "Address serving /health, /ready, /blobs and the /events websocket, empty disables")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		o.given[f.Name] = true
	})
	return o, nil
}

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if opts.createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), opts.configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err,
				"config_path", opts.configPath,
			)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file",
			"config_path", opts.configPath,
		)
		return
	}

	simConfig, err := buildConfig(ctx, logger, opts)
	if err != nil {
		logger.Error(ctx, "Invalid configuration", err,
			"config_path", opts.configPath,
		)
		os.Exit(1)
	}

	sim, err := engine.NewSimulation(simConfig, engine.WithLogger(logger))
	if err != nil {
		logger.Error(ctx, "Failed to create simulation", err)
		os.Exit(1)
	}

	sim.EventBus().Subscribe(event.TickCompleted, func(e event.Event) {
		te := e.(*event.TickEvent)
		logger.Info(ctx, "Tick completed",
			"tick", te.Tick,
			"blobs", te.Blobs,
			"colliders", te.Colliders,
			"removed", te.Removed,
			"circle_rect_tests", te.Stats.CircleRectTests,
			"point_in_circle_tests", te.Stats.PointInCircleTests,
			"duration_us", te.Duration.Microseconds(),
		)
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		server *http.Server
		hub    *feed.Hub
	)
	if opts.httpAddr != "" {
		server, hub = startHTTPServer(ctx, logger, opts.httpAddr, sim)
	}

	logger.Info(ctx, "Starting simulation",
		"width", simConfig.World.Width,
		"height", simConfig.World.Height,
		"blobs", len(sim.Blobs()),
		"policy", simConfig.Policy.String(),
		"workers", simConfig.Workers,
		"ticks", opts.ticks,
	)

	runErr := sim.Run(runCtx, opts.ticks)

	if server != nil {
		// websocket connections are hijacked, Shutdown does not see them
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "HTTP server shutdown failed", err)
		}
		cancel()
	}

	stats := sim.Stats()
	logger.Info(ctx, "Simulation stopped",
		"ticks", sim.CurrentTick(),
		"blobs", len(sim.Blobs()),
		"circle_rect_tests", stats.CircleRectTests,
		"point_in_circle_tests", stats.PointInCircleTests,
	)

	if runErr != nil {
		logger.Error(ctx, "Simulation failed", runErr)
		os.Exit(1)
	}
}

// buildConfig loads the configuration file, then applies the environment
// and finally the flags given on the command line.
func buildConfig(ctx context.Context, logger *logging.Logger, o *options) (*config.SimConfig, error) {
	cfg, err := loadConfig(ctx, logger, o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := applyFlags(cfg, o); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies the given flags into cfg. Flags left off the command
// line keep the file and environment values.
func applyFlags(cfg *config.SimConfig, o *options) error {
	if o.given["policy"] {
		p, err := collision.ParsePolicy(o.policy)
		if err != nil {
			return err
		}
		cfg.Policy = p
	}
	if o.given["workers"] {
		cfg.Workers = o.workers
	}
	if o.given["blobs"] {
		cfg.Blobs.Count = o.blobs
	}
	if o.given["seed"] {
		cfg.Seed = o.seed
	}
	return nil
}

// loadConfig reads path, falling back to defaults when the file does not exist.
func loadConfig(ctx context.Context, logger *logging.Logger, path string) (*config.SimConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Configuration file not found, using default configuration",
			"config_path", path,
		)
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func startHTTPServer(ctx context.Context, logger *logging.Logger, addr string, sim *engine.Simulation) (*http.Server, *feed.Hub) {
	checker := health.NewHealthChecker()
	// allow a few missed ticks before reporting a stall
	checker.AddCheck(health.NewSimulationHealthCheck(sim, 10*sim.TickDelay()+time.Second))
	checker.AddCheck(health.NewMemoryHealthCheck(500, nil))

	hub := feed.NewHub(sim.EventBus(), feed.WithLogger(logger))
	router := checker.Router()
	router.Handle("/events", hub).Methods(http.MethodGet)
	router.HandleFunc("/blobs", spawnHandler(sim)).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Starting HTTP server",
			"address", addr,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "HTTP server failed", err)
		}
	}()
	return server, hub
}

// spawnHandler adds a batch of random blobs on each request.
func spawnHandler(sim *engine.Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		added := sim.SpawnBatch()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{
			"spawned": len(added),
			"blobs":   len(sim.Blobs()),
		})
	}
}
