// Package config provides unified configuration for the histdb service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration. All values are static and
// read once at process start.
type Config struct {
	// DataDir is the base directory for the database and work files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Ingest pipeline configuration
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Backup configuration
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address for the API server
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// IngestConfig holds the ingestion pipeline configuration.
type IngestConfig struct {
	// QueueCapacity is the bounded queue size; enqueues past this are rejected
	QueueCapacity int `json:"queue_capacity" yaml:"queue_capacity"`

	// Workers is the number of consumer goroutines
	Workers int `json:"workers" yaml:"workers"`

	// DrainTimeout bounds the shutdown drain of queued events
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file; defaults to <data_dir>/histdb.db
	Path string `json:"path" yaml:"path"`

	// BusyTimeout is the SQLite busy handler timeout
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
}

// BackupConfig holds snapshot backup configuration.
type BackupConfig struct {
	// Enabled turns the periodic backup daemon on
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Interval is the time between snapshots
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Retain is the number of snapshots kept before pruning
	Retain int `json:"retain" yaml:"retain"`

	// WorkDir is the scratch directory for snapshot files
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// Storage is the snapshot destination
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is the log output format: json, console
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/histdb",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Ingest: IngestConfig{
			QueueCapacity: 1000,
			Workers:       1,
			DrainTimeout:  5 * time.Second,
		},
		Database: DatabaseConfig{
			BusyTimeout: 5 * time.Second,
		},
		Backup: BackupConfig{
			Enabled:  false,
			Interval: 6 * time.Hour,
			Retain:   7,
			Storage: StorageConfig{
				Type: "local",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/histdb"
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "histdb.db")
	}
	if c.Backup.WorkDir == "" {
		c.Backup.WorkDir = filepath.Join(c.DataDir, "backup")
	}
	if c.Backup.Storage.Type == "local" && c.Backup.Storage.Path == "" {
		c.Backup.Storage.Path = filepath.Join(c.DataDir, "snapshots")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Ingest.QueueCapacity <= 0 {
		return fmt.Errorf("ingest.queue_capacity must be positive, got %d", c.Ingest.QueueCapacity)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.DrainTimeout <= 0 {
		return fmt.Errorf("ingest.drain_timeout must be positive, got %s", c.Ingest.DrainTimeout)
	}

	if c.Backup.Enabled {
		if c.Backup.Storage.Type != "local" && c.Backup.Storage.Type != "s3" {
			return fmt.Errorf("invalid backup storage type: %s (must be local or s3)", c.Backup.Storage.Type)
		}
		if c.Backup.Storage.Type == "s3" && c.Backup.Storage.S3.Bucket == "" {
			return fmt.Errorf("backup.storage.s3.bucket is required when storage type is s3")
		}
		if c.Backup.Retain <= 0 {
			return fmt.Errorf("backup.retain must be positive, got %d", c.Backup.Retain)
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays configuration from environment variables.
// Environment variables use the HISTDB_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("HISTDB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HISTDB_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("HISTDB_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Ingest pipeline
	if v := os.Getenv("HISTDB_QUEUE_CAPACITY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.QueueCapacity)
	}
	if v := os.Getenv("HISTDB_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Ingest.Workers)
	}
	if v := os.Getenv("HISTDB_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.DrainTimeout = d
		}
	}

	// Backup
	if v := os.Getenv("HISTDB_BACKUP_ENABLED"); v != "" {
		cfg.Backup.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("HISTDB_BACKUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backup.Interval = d
		}
	}
	if v := os.Getenv("HISTDB_BACKUP_STORAGE_TYPE"); v != "" {
		cfg.Backup.Storage.Type = v
	}
	if v := os.Getenv("HISTDB_BACKUP_STORAGE_PATH"); v != "" {
		cfg.Backup.Storage.Path = v
	}
	if v := os.Getenv("HISTDB_S3_BUCKET"); v != "" {
		cfg.Backup.Storage.S3.Bucket = v
	}
	if v := os.Getenv("HISTDB_S3_REGION"); v != "" {
		cfg.Backup.Storage.S3.Region = v
	}
	if v := os.Getenv("HISTDB_S3_ENDPOINT"); v != "" {
		cfg.Backup.Storage.S3.Endpoint = v
	}

	// Logging
	if v := os.Getenv("HISTDB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HISTDB_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Database.Path),
	}
	if c.Backup.Enabled {
		dirs = append(dirs, c.Backup.WorkDir)
		if c.Backup.Storage.Type == "local" {
			dirs = append(dirs, c.Backup.Storage.Path)
		}
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
