// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New() to build a Config with defaults.
//   - Load layers defaults, an optional YAML file and SCOUT_ env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"time"

	"github.com/okian/scout/internal/domain/model"
)

// Connector kinds understood by the connector registry.
const (
	ConnectorKindFile = "file"
	ConnectorKindHTTP = "http"
)

// Connector tiers weight the talent signal score.
const (
	TierInstitutional = "institutional"
	TierCommunity     = "community"
	TierSocial        = "social"
)

// Directory drivers.
const (
	DirectoryMemory = "memory"
	DirectorySQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory work queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxAttempts caps deliveries of a failing work item.
	MaxAttempts int `koanf:"max_attempts"`

	// DeliveryTTLSeconds is how long completed work keys are remembered
	// for duplicate-delivery suppression.
	DeliveryTTLSeconds int `koanf:"delivery_ttl_seconds"`

	// ConnectorTimeoutSeconds is the per-connector execution budget.
	ConnectorTimeoutSeconds int `koanf:"connector_timeout_seconds"`

	AutoMergeThreshold float64 `koanf:"auto_merge_threshold"`
	NoMatchThreshold   float64 `koanf:"no_match_threshold"`

	// MaxBlockSize caps the number of profiles compared per record.
	MaxBlockSize int `koanf:"max_block_size"`

	SimilarityWeights Weights `koanf:"similarity_weights"`

	// DirectoryDriver selects the Talent Directory backend: memory or sqlite.
	DirectoryDriver string `koanf:"directory_driver"`

	// DirectoryPath is the SQLite database file for the sqlite driver.
	DirectoryPath string `koanf:"directory_path"`

	// MergeMaxRetries bounds retries of directory writes that lost a
	// version race.
	MergeMaxRetries int `koanf:"merge_max_retries"`

	// ScheduleIntervalSeconds is how often the scheduler looks for due
	// connectors. Zero disables the scheduler.
	ScheduleIntervalSeconds int `koanf:"schedule_interval_seconds"`

	// MaxListLimit caps page sizes on list endpoints.
	MaxListLimit int `koanf:"max_list_limit"`

	// Connectors registers sources by id.
	Connectors map[string]Connector `koanf:"connectors"`
}

// Weights are the per-attribute similarity weights.
type Weights struct {
	Name        float64 `koanf:"name"`
	Affiliation float64 `koanf:"affiliation"`
	Identifiers float64 `koanf:"identifiers"`
	Metrics     float64 `koanf:"metrics"`
}

// Connector configures one source.
type Connector struct {
	Kind    string `koanf:"kind"`
	Path    string `koanf:"path"`
	URL     string `koanf:"url"`
	Enabled bool   `koanf:"enabled"`

	// Tier is institutional, community or social; empty scores nothing.
	Tier string `koanf:"tier"`

	// Schedule is a standard five-field cron cadence or a descriptor such
	// as "@daily". Empty means every scheduler tick.
	Schedule string `koanf:"schedule"`

	// Fields maps canonical attribute names to source field names.
	Fields map[string]string `koanf:"fields"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		QueueSize:               10_000,
		WorkerCount:             runtime.NumCPU() * 2,
		MaxAttempts:             3,
		DeliveryTTLSeconds:      3600,
		ConnectorTimeoutSeconds: 300,
		AutoMergeThreshold:      0.9,
		NoMatchThreshold:        0.3,
		MaxBlockSize:            200,
		SimilarityWeights: Weights{
			Name:        0.45,
			Affiliation: 0.2,
			Identifiers: 0.25,
			Metrics:     0.1,
		},
		DirectoryDriver: DirectoryMemory,
		DirectoryPath:   "scout.db",
		MergeMaxRetries: 5,
		MaxListLimit:    100,
		Connectors:      map[string]Connector{},
	}
}

// Thresholds returns the configured decision thresholds.
func (c *Config) Thresholds() model.Thresholds {
	return model.Thresholds{AutoMerge: c.AutoMergeThreshold, NoMatch: c.NoMatchThreshold}
}

// ConnectorTimeout returns the per-connector budget.
func (c *Config) ConnectorTimeout() time.Duration {
	return time.Duration(c.ConnectorTimeoutSeconds) * time.Second
}

// DeliveryTTL returns the duplicate-delivery window.
func (c *Config) DeliveryTTL() time.Duration {
	return time.Duration(c.DeliveryTTLSeconds) * time.Second
}

// ScheduleInterval returns the scheduler period, zero when disabled.
func (c *Config) ScheduleInterval() time.Duration {
	return time.Duration(c.ScheduleIntervalSeconds) * time.Second
}
