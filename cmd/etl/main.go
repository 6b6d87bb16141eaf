package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/cache"
	"github.com/raaihank/medscrub/internal/config"
	"github.com/raaihank/medscrub/internal/etl"
	"github.com/raaihank/medscrub/internal/logger"
	"github.com/raaihank/medscrub/internal/ner"
	"github.com/raaihank/medscrub/internal/scrub"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSONL)")
		outputFile = flag.String("output", "", "Output file (defaults to <input>.scrubbed.<ext>)")
		batchSize  = flag.Int("batch-size", 500, "Batch size for processing")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
		salt       = flag.String("salt", "", "Session salt (hex); generated per run when empty")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input notes.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input notes.parquet --workers 8 --output deid.parquet\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting medscrub ETL pipeline",
		zap.String("version", "0.1.0"),
		zap.String("input", *inputFile))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		log.Fatal("Input file does not exist", zap.String("file", *inputFile))
	}

	output := *outputFile
	if output == "" {
		output = defaultOutputPath(*inputFile)
	}

	scrubber, cleanup := buildScrubber(cfg, log)
	defer cleanup()

	etlConfig := &etl.Config{
		BatchSize:      *batchSize,
		WorkerCount:    *workers,
		ValidateData:   true,
		ProgressReport: 1000,
		SessionSalt:    *salt,
	}

	pipeline := etl.NewPipeline(scrubber, etlConfig, log.WithComponent("etl").Logger)

	result, err := pipeline.ProcessFile(ctx, *inputFile, output)
	if err != nil {
		log.Fatal("ETL processing failed", zap.Error(err))
	}

	log.Info("Dataset processing completed",
		zap.String("input", *inputFile),
		zap.String("output", output),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("total_redactions", result.TotalRedactions),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("scrub_time", result.ScrubTime),
		zap.Float64("records_per_second", float64(result.TotalRecords)/result.Duration.Seconds()))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}
}

// buildScrubber wires the detection pipeline the same way the server
// does. NER failure degrades to regex+context coverage.
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

// defaultOutputPath inserts ".scrubbed" before the input extension.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".scrubbed" + ext
}
