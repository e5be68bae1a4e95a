package dedupe

import (
	"time"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/scoring"
	"github.com/okian/scout/pkg/logger"
)

const defaultMaxBlockSize = 200

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithScorer replaces the similarity scorer.
func WithScorer(s scoring.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithThresholds sets the initial decision thresholds. Invalid values are
// ignored; use SetThresholds to get the validation error.
func WithThresholds(t model.Thresholds) Option {
	return func(e *Engine) {
		if t.Validate() == nil {
			e.thresholds = t
		}
	}
}

// WithMaxBlockSize caps the number of profiles scored per record.
func WithMaxBlockSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBlock = n
		}
	}
}

// WithReviewQueue sets where ambiguous candidates are sent for review.
func WithReviewQueue(q ReviewQueue) Option {
	return func(e *Engine) {
		e.review = q
	}
}

// WithStore persists candidates through s.
func WithStore(s Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}
