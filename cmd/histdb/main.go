// Package main implements the histdb binary: an HTTP ingestion service for
// browsing and editor activity events backed by SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/histdb/histdb/internal/app"
	"github.com/histdb/histdb/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		httpAddr    string
		dbPath      string
		workers     int
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite database file")
	flag.IntVar(&workers, "workers", 0, "Number of ingestion workers")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "histdb - personal activity event store\n\n")
		fmt.Fprintf(os.Stderr, "Usage: histdb [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  histdb --data-dir /data/histdb\n")
		fmt.Fprintf(os.Stderr, "  histdb --config /etc/histdb/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  HISTDB_DATA_DIR        Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  HISTDB_HTTP_ADDR       HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  HISTDB_QUEUE_CAPACITY  Ingestion queue capacity\n")
		fmt.Fprintf(os.Stderr, "  HISTDB_WORKERS         Number of ingestion workers\n")
		fmt.Fprintf(os.Stderr, "  HISTDB_LOG_LEVEL       Log level (debug, info, warn, error)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("histdb version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// A local .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir, httpAddr, dbPath, workers)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers configuration: file, then environment, then flags.
func loadConfig(configFile, dataDir, httpAddr, dbPath string, workers int) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if workers > 0 {
		cfg.Ingest.Workers = workers
	}

	return cfg, nil
}
