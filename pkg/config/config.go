// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// TimestampMode controls how unparsable event timestamps are handled.
const (
	// TimestampLenient substitutes the current time for unparsable
	// event dates. This matches the historical behavior.
	TimestampLenient = "lenient"
	// TimestampStrict drops the record and counts it as skipped.
	TimestampStrict = "strict"
)

// Config holds all bootlens configuration.
type Config struct {
	Version int `yaml:"version"`

	Storage   StorageConfig   `yaml:"storage"`
	Collector CollectorConfig `yaml:"collector"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig for persisted diagnostics state.
type StorageConfig struct {
	// Dir is the root directory for all persisted artifacts.
	Dir string `yaml:"dir"`

	// LedgerBackend selects the operation ledger backend: jsonl | duckdb.
	LedgerBackend string `yaml:"ledger_backend"`

	// MaxSessions bounds the boot session history.
	MaxSessions int `yaml:"max_sessions"`

	// MirrorMaxSizeMB rotates the human-readable mirror log by size.
	MirrorMaxSizeMB int `yaml:"mirror_max_size_mb"`

	// MirrorBackups is the number of rotated mirror files to keep.
	MirrorBackups int `yaml:"mirror_backups"`
}

// CollectorConfig for the system event log collector.
type CollectorConfig struct {
	// ProbeTimeout bounds the one-time permission probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// QueryTimeout bounds each event log query.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// MaxEvents is the default collection budget.
	MaxEvents int `yaml:"max_events"`

	// TimestampMode is strict or lenient (see TimestampStrict).
	TimestampMode string `yaml:"timestamp_mode"`

	// BootEventIDs is the allow-list for the primary log query.
	// Empty means the built-in boot-relevant set.
	BootEventIDs []int `yaml:"boot_event_ids"`
}

// SnapshotConfig selects where per-session event snapshots are kept.
type SnapshotConfig struct {
	// Backend is file | redis | s3.
	Backend string `yaml:"backend"`

	// Retain is how many per-session snapshots to keep.
	Retain int `yaml:"retain"`

	// RedisAddress for the redis backend (e.g. "localhost:6379").
	RedisAddress string `yaml:"redis_address"`

	// RedisPassword for authentication (optional).
	RedisPassword string `yaml:"redis_password"`

	// S3Bucket for the s3 backend.
	S3Bucket string `yaml:"s3_bucket"`

	// S3Prefix is prepended to snapshot keys.
	S3Prefix string `yaml:"s3_prefix"`

	// S3Region overrides the default AWS region resolution.
	S3Region string `yaml:"s3_region"`
}

// TelemetryConfig for optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dir := filepath.Join(homeDir, ".bootlens")

	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Dir:             dir,
			LedgerBackend:   "jsonl",
			MaxSessions:     5,
			MirrorMaxSizeMB: 10,
			MirrorBackups:   3,
		},
		Collector: CollectorConfig{
			ProbeTimeout:  5 * time.Second,
			QueryTimeout:  10 * time.Second,
			MaxEvents:     50,
			TimestampMode: TimestampLenient,
		},
		Snapshot: SnapshotConfig{
			Backend: "file",
			Retain:  5,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Load builds the effective configuration from all sources in priority
// order: defaults, then system/user/project files, then environment.
func Load() (*Config, error) {
	cfg := Default()

	for _, path := range configPaths() {
		if err := loadFile(cfg, path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config %s: %w", path, err)
			}
		}
	}

	loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPaths returns config file paths in priority order.
func configPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/bootlens/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".bootlens", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".bootlens.yaml"))
	}
	return paths
}

// loadFile merges a single config file over cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// loadEnv applies environment overrides.
func loadEnv(cfg *Config) {
	if v := os.Getenv("BOOTLENS_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("BOOTLENS_LEDGER_BACKEND"); v != "" {
		cfg.Storage.LedgerBackend = v
	}
	if v := os.Getenv("BOOTLENS_TIMESTAMP_MODE"); v != "" {
		cfg.Collector.TimestampMode = v
	}
	if v := os.Getenv("BOOTLENS_SNAPSHOT_BACKEND"); v != "" {
		cfg.Snapshot.Backend = v
	}
	if v := os.Getenv("BOOTLENS_REDIS_ADDRESS"); v != "" {
		cfg.Snapshot.RedisAddress = v
	}
	if v := os.Getenv("BOOTLENS_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
	if v := os.Getenv("BOOTLENS_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Collector.MaxEvents = n
		}
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.LedgerBackend {
	case "jsonl", "duckdb":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Storage.LedgerBackend)
	}
	switch c.Collector.TimestampMode {
	case TimestampLenient, TimestampStrict:
	default:
		return fmt.Errorf("unknown timestamp mode %q", c.Collector.TimestampMode)
	}
	switch c.Snapshot.Backend {
	case "file", "redis", "s3":
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}
	if c.Storage.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", c.Storage.MaxSessions)
	}
	if c.Snapshot.Retain <= 0 {
		return fmt.Errorf("snapshot retain must be positive, got %d", c.Snapshot.Retain)
	}
	return nil
}

// EnsureDirs creates the storage directory tree.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.Dir, c.EventLogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// SessionsPath is the session store file.
func (c *Config) SessionsPath() string {
	return filepath.Join(c.Storage.Dir, "boot_sessions.json")
}

// LastBootPath is the last-boot marker file.
func (c *Config) LastBootPath() string {
	return filepath.Join(c.Storage.Dir, "last_boot_time.txt")
}

// LedgerPath is the append-only operations ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Storage.Dir, "operations.jsonl")
}

// LedgerDBPath is the embedded database used by the duckdb backend.
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.Storage.Dir, "operations.db")
}

// MirrorLogPath is the rotated human-readable application log.
func (c *Config) MirrorLogPath() string {
	return filepath.Join(c.Storage.Dir, "application.log")
}

// EventLogDir holds per-session event snapshots.
func (c *Config) EventLogDir() string {
	return filepath.Join(c.Storage.Dir, "event_logs")
}
