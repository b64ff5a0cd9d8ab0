// Command goshin runs the analysis dispatcher service: it loads config,
// wires the storage manager and HTTP clients, starts the periodic driver,
// and serves a minimal health/version HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/goshin/internal/clients/engine"
	"github.com/ternarybob/goshin/internal/clients/listing"
	"github.com/ternarybob/goshin/internal/common"
	"github.com/ternarybob/goshin/internal/services/classifier"
	"github.com/ternarybob/goshin/internal/services/dispatcher"
	"github.com/ternarybob/goshin/internal/services/driver"
	"github.com/ternarybob/goshin/internal/services/poller"
	"github.com/ternarybob/goshin/internal/storage/surrealdb"
)

func main() {
	configPath := os.Getenv("GOSHIN_CONFIG")

	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	config, err := common.LoadConfig(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if missing := config.ValidateRequired(); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "Missing required config: %v\n", missing)
		os.Exit(1)
	}

	logger := common.NewLogger(config.Logging.Level)
	common.PrintBanner(config, logger)

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage manager")
	}

	engineClient := engine.NewClient(
		engine.WithBaseURL(config.Engine.BaseURL),
		engine.WithAnalyzePath(config.Engine.AnalyzePath),
		engine.WithHealthPath(config.Engine.HealthPath),
		engine.WithLogger(logger),
		engine.WithHTTPTimeout(config.Dispatcher.GetRequestTimeout()+10*time.Second),
	)

	listingClient := listing.NewClient(
		config.Listing.BaseURL,
		listing.WithLogger(logger),
		listing.WithRateLimit(config.Listing.RateLimit),
	)

	clf := classifier.New(storageManager.TaskStore(), storageManager.MatchStore(), logger)

	disp := dispatcher.New(
		storageManager.TaskStore(),
		storageManager.MatchStore(),
		engineClient,
		clf,
		logger,
		dispatcher.Config{
			WindowSize:       config.Dispatcher.WindowSize,
			RequestTimeout:   config.Dispatcher.GetRequestTimeout(),
			MaxVisits:        config.Dispatcher.MaxVisits,
			PreemptThreshold: config.Dispatcher.PreemptThreshold,
		},
	)

	mvPoller := poller.New(listingClient, storageManager.MatchStore(), storageManager.TaskStore(), logger)

	drv := driver.New(logger, disp.RunSupervised)
	if config.Poller.Enabled {
		drv.Register(driver.Job{
			Name:     "poll_moves",
			Interval: config.Poller.GetInterval(),
			Run:      mvPoller.Run,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	mux := buildMux(engineClient)
	srv := &http.Server{
		Addr:         "127.0.0.1:8601",
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting health HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Health HTTP server failed")
		}
	}()

	go drv.Run(ctx)

	logger.Info().Msg("goshin ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Health HTTP server shutdown failed")
	}

	if err := storageManager.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close storage manager")
	}

	common.PrintShutdownBanner(logger)
}

// buildMux builds the minimal health/version HTTP mux.
func buildMux(engineClient *engine.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(engineClient))
	mux.HandleFunc("/version", versionHandler)
	return mux
}

func healthHandler(engineClient *engine.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status := "ok"
		if err := engineClient.Health(r.Context()); err != nil {
			status = "engine_unreachable"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
