package orchestrator

import (
	"time"

	"github.com/okian/scout/pkg/logger"
)

// DefaultConnectorTimeout is the per-execution budget when none is set.
const DefaultConnectorTimeout = 5 * time.Minute

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithConnectorTimeout sets the per-execution timeout budget.
func WithConnectorTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithStore persists runs through s.
func WithStore(s Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}
