// Package worker runs queued work messages through a handler with bounded
// retries and duplicate-delivery suppression.
package worker

import (
	"context"

	"github.com/okian/scout/internal/adapters/mq/queue"
	"github.com/okian/scout/pkg/logger"
)

// Option applies a configuration option to a worker pool.
type Option func(*config)

type config struct {
	name        string
	logger      logger.Logger
	tracker     *Tracker
	maxAttempts int
	deadLetter  DeadLetterFunc
}

// DeadLetterFunc receives a message the pool gives up on, with the last error.
type DeadLetterFunc func(ctx context.Context, m queue.Message, err error)

// WithName sets the pool name used as the worker name prefix.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets a custom logger for the workers.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracker sets the delivery tracker shared by the workers.
func WithTracker(t *Tracker) Option {
	return func(c *config) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithMaxAttempts bounds how often a failing message is delivered.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithDeadLetter sets the callback for messages that failed for good:
// permanent errors, exhausted attempts and retries the queue refused.
func WithDeadLetter(fn DeadLetterFunc) Option {
	return func(c *config) {
		c.deadLetter = fn
	}
}
