package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Ingest.QueueCapacity != 1000 {
		t.Errorf("default queue capacity = %d, want 1000", cfg.Ingest.QueueCapacity)
	}
	if cfg.Ingest.Workers != 1 {
		t.Errorf("default workers = %d, want 1", cfg.Ingest.Workers)
	}
	if cfg.Ingest.DrainTimeout != 5*time.Second {
		t.Errorf("default drain timeout = %s, want 5s", cfg.Ingest.DrainTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestResolveDerivesPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/histdb"
	cfg.Resolve()

	if cfg.Database.Path != filepath.Join("/var/lib/histdb", "histdb.db") {
		t.Errorf("database path = %s", cfg.Database.Path)
	}
	if cfg.Backup.Storage.Path != filepath.Join("/var/lib/histdb", "snapshots") {
		t.Errorf("snapshot path = %s", cfg.Backup.Storage.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Ingest.QueueCapacity = 0 }},
		{"negative workers", func(c *Config) { c.Ingest.Workers = -1 }},
		{"zero drain timeout", func(c *Config) { c.Ingest.DrainTimeout = 0 }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"bad backup storage", func(c *Config) {
			c.Backup.Enabled = true
			c.Backup.Storage.Type = "ftp"
		}},
		{"s3 without bucket", func(c *Config) {
			c.Backup.Enabled = true
			c.Backup.Storage.Type = "s3"
		}},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
data_dir: /tmp/histdb-test
ingest:
  queue_capacity: 50
  workers: 4
  drain_timeout: 2s
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Ingest.QueueCapacity != 50 {
		t.Errorf("queue capacity = %d, want 50", cfg.Ingest.QueueCapacity)
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Ingest.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Logging.Level)
	}
	// Unset keys keep defaults
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http addr = %s, want :8080", cfg.HTTP.Addr)
	}
}

func TestLoadFromFileUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("HISTDB_QUEUE_CAPACITY", "25")
	t.Setenv("HISTDB_WORKERS", "3")
	t.Setenv("HISTDB_DRAIN_TIMEOUT", "750ms")
	t.Setenv("HISTDB_HTTP_ADDR", ":9999")
	t.Setenv("HISTDB_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Ingest.QueueCapacity != 25 {
		t.Errorf("queue capacity = %d, want 25", cfg.Ingest.QueueCapacity)
	}
	if cfg.Ingest.Workers != 3 {
		t.Errorf("workers = %d, want 3", cfg.Ingest.Workers)
	}
	if cfg.Ingest.DrainTimeout != 750*time.Millisecond {
		t.Errorf("drain timeout = %s, want 750ms", cfg.Ingest.DrainTimeout)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("http addr = %s, want :9999", cfg.HTTP.Addr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %s, want warn", cfg.Logging.Level)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested", "histdb")
	cfg.Backup.Enabled = true
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.Backup.WorkDir, cfg.Backup.Storage.Path} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("directory %s not created", dir)
		}
	}
}
