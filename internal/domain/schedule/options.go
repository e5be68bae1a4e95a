package schedule

import (
	"time"

	"github.com/okian/scout/pkg/logger"
)

// Option applies a configuration option to the Planner.
type Option func(*Planner)

// WithStore persists schedules through s.
func WithStore(s Store) Option {
	return func(p *Planner) {
		p.store = s
	}
}

// WithLogger sets the planner logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(p *Planner) {
		if fn != nil {
			p.now = fn
		}
	}
}
