package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/okian/scout/internal/domain/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCOUT_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SCOUT_CONFIG is set
//  3. env (prefix SCOUT_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SCOUT_QUEUE_SIZE -> queue_size. A double underscore descends one level:
	// SCOUT_SIMILARITY_WEIGHTS__NAME -> similarity_weights.name.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	if c.QueueSize <= 0 || c.WorkerCount <= 0 {
		return invalid("queue_size and worker_count must be positive")
	}
	if c.MaxAttempts <= 0 {
		return invalid("max_attempts must be positive")
	}
	if c.ConnectorTimeoutSeconds <= 0 {
		return invalid("connector_timeout_seconds must be positive")
	}
	if c.ScheduleIntervalSeconds < 0 {
		return invalid("schedule_interval_seconds must not be negative")
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	w := c.SimilarityWeights
	if w.Name < 0 || w.Affiliation < 0 || w.Identifiers < 0 || w.Metrics < 0 ||
		w.Name+w.Affiliation+w.Identifiers+w.Metrics == 0 {
		return invalid("similarity_weights must be non-negative with a positive sum")
	}
	switch c.DirectoryDriver {
	case DirectoryMemory:
	case DirectorySQLite:
		if c.DirectoryPath == "" {
			return invalid("directory_path is required for the sqlite driver")
		}
	default:
		return invalid("unknown directory_driver %q", c.DirectoryDriver)
	}
	for id, conn := range c.Connectors {
		switch conn.Kind {
		case ConnectorKindFile:
			if conn.Path == "" {
				return invalid("connector %q: path is required", id)
			}
		case ConnectorKindHTTP:
			if conn.URL == "" {
				return invalid("connector %q: url is required", id)
			}
		default:
			return invalid("connector %q: unknown kind %q", id, conn.Kind)
		}
		switch conn.Tier {
		case "", TierInstitutional, TierCommunity, TierSocial:
		default:
			return invalid("connector %q: unknown tier %q", id, conn.Tier)
		}
		if conn.Schedule != "" {
			if _, err := cron.ParseStandard(conn.Schedule); err != nil {
				return invalid("connector %q: schedule %q: %v", id, conn.Schedule, err)
			}
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, model.NewKind("config", model.ErrConfiguration, format, args...))
}
