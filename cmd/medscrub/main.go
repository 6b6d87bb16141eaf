package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/audit"
	"github.com/raaihank/medscrub/internal/cache"
	"github.com/raaihank/medscrub/internal/config"
	"github.com/raaihank/medscrub/internal/logger"
	"github.com/raaihank/medscrub/internal/ner"
	"github.com/raaihank/medscrub/internal/scrub"
	"github.com/raaihank/medscrub/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("medscrub %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting medscrub",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	scrubber, cleanup := buildScrubber(cfg, log)
	defer cleanup()

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewStore(&cfg.Audit, log.WithComponent("audit").Logger)
		if err != nil {
			log.Fatal("Failed to initialize audit store", zap.Error(err))
		}
		defer auditStore.Close()
	}

	srv := server.New(cfg, log, scrubber, auditStore)

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// buildScrubber wires the detection pipeline. A missing or failed NER
// model is not fatal: the scrubber runs with regex and context passes
// and reports degraded coverage through result warnings.
func buildScrubber(cfg *config.Config, log *logger.Logger) (*scrub.Scrubber, func()) {
	var closers []func()
	cleanup := func() {
		for _, fn := range closers {
			fn()
		}
	}

	var entityCache *cache.EntityCache
	if cfg.Cache.Enabled && cfg.NER.CacheEnabled {
		ec, err := cache.New(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Entity cache unavailable, continuing without it", zap.Error(err))
		} else {
			entityCache = ec
			closers = append(closers, func() { ec.Close() })
		}
	}

	var oracle scrub.Recognizer
	if cfg.NER.Enabled && cfg.Scrub.EnableStatistical {
		service, err := ner.NewService(cfg.NER, log.WithComponent("ner").Logger, entityCache)
		if err != nil {
			log.Warn("NER model unavailable, statistical pass disabled", zap.Error(err))
		} else {
			oracle = service
			closers = append(closers, func() { service.Close() })
		}
	}

	scrubber := scrub.New(cfg.Scrub, oracle, log.WithComponent("scrub").Logger)
	return scrubber, cleanup
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
