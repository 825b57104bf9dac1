// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
)

// Upper bound on lists; the sync record addresses a list with one byte.
const maxListCount = 256

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of merge workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the submission ID cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ListCount and ListCapacity shape the leaderboard store.
	ListCount    int `koanf:"list_count"`
	ListCapacity int `koanf:"list_capacity"`

	// MaxPageSize caps the size query parameter of page reads.
	MaxPageSize int `koanf:"max_page_size"`

	// DataDir holds the snapshot file and the process lock.
	DataDir string `koanf:"data_dir"`

	// SnapshotFile is the snapshot name inside DataDir.
	SnapshotFile string `koanf:"snapshot_file"`

	// SaveIntervalMS is the period of the background saver. Zero disables it.
	SaveIntervalMS int `koanf:"save_interval_ms"`

	// RecordsPerPacket bounds how many sync records share one transport packet.
	RecordsPerPacket int `koanf:"records_per_packet"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "json",
		Addr:             ":9080",
		QueueSize:        100_000,
		WorkerCount:      runtime.NumCPU(),
		DedupeSize:       500_000,
		ListCount:        4,
		ListCapacity:     100,
		MaxPageSize:      100,
		DataDir:          "./data",
		SnapshotFile:     "leaderboards.bin",
		SaveIntervalMS:   5_000,
		RecordsPerPacket: 16,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("%w: log_format must be json or text, got %q", ErrInvalidConfig, c.LogFormat)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.ListCount < 1 || c.ListCount > maxListCount:
		return fmt.Errorf("%w: list_count must be in [1,%d]", ErrInvalidConfig, maxListCount)
	case c.ListCapacity < 1:
		return fmt.Errorf("%w: list_capacity must be positive", ErrInvalidConfig)
	case c.MaxPageSize < 1:
		return fmt.Errorf("%w: max_page_size must be positive", ErrInvalidConfig)
	case c.DataDir == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.SnapshotFile == "":
		return fmt.Errorf("%w: snapshot_file must not be empty", ErrInvalidConfig)
	case c.SaveIntervalMS < 0:
		return fmt.Errorf("%w: save_interval_ms must not be negative", ErrInvalidConfig)
	case c.RecordsPerPacket < 1:
		return fmt.Errorf("%w: records_per_packet must be positive", ErrInvalidConfig)
	}
	return nil
}
