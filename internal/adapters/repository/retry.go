package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Retry defaults.
const (
	defaultMaxRetries      = 5
	defaultInitialInterval = 5 * time.Millisecond
	defaultMaxInterval     = 250 * time.Millisecond
)

// RetryOption configures Retrying.
type RetryOption func(*Retrying)

// WithMaxRetries bounds retries after the first attempt.
func WithMaxRetries(n int) RetryOption {
	return func(r *Retrying) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithBackoffIntervals sets the exponential backoff bounds.
func WithBackoffIntervals(initial, maxInterval time.Duration) RetryOption {
	return func(r *Retrying) {
		if initial > 0 && maxInterval >= initial {
			r.initial = initial
			r.maxInterval = maxInterval
		}
	}
}

// WithRetryLogger sets the logger used to report exhausted retries.
func WithRetryLogger(l logger.Logger) RetryOption {
	return func(r *Retrying) {
		if l != nil {
			r.log = l
		}
	}
}

// Retrying wraps a Directory and retries writes that lost a version race
// with bounded exponential backoff. Exhausted retries surface as
// model.ErrConflict.
type Retrying struct {
	Directory
	maxRetries  int
	initial     time.Duration
	maxInterval time.Duration
	log         logger.Logger
}

// NewRetrying wraps next.
func NewRetrying(next Directory, opts ...RetryOption) *Retrying {
	r := &Retrying{
		Directory:   next,
		maxRetries:  defaultMaxRetries,
		initial:     defaultInitialInterval,
		maxInterval: defaultMaxInterval,
		log:         logger.Get().Named("directory"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UpsertProvenance implements Directory.
func (r *Retrying) UpsertProvenance(ctx context.Context, id string, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error) {
	return r.retry(ctx, "directory.upsert", id, func() (model.TalentProfile, error) {
		return r.Directory.UpsertProvenance(ctx, id, rec, link)
	})
}

// DetachProvenance implements Directory.
func (r *Retrying) DetachProvenance(ctx context.Context, id, recordID string) (model.TalentProfile, error) {
	return r.retry(ctx, "directory.detach", id, func() (model.TalentProfile, error) {
		return r.Directory.DetachProvenance(ctx, id, recordID)
	})
}

// Archive implements Directory.
func (r *Retrying) Archive(ctx context.Context, id string) (model.TalentProfile, error) {
	return r.retry(ctx, "directory.archive", id, func() (model.TalentProfile, error) {
		return r.Directory.Archive(ctx, id)
	})
}

func (r *Retrying) retry(ctx context.Context, op, id string, fn func() (model.TalentProfile, error)) (model.TalentProfile, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initial
	eb.MaxInterval = r.maxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.maxRetries)), ctx)

	var (
		out      model.TalentProfile
		attempts int
	)
	err := backoff.Retry(func() error {
		attempts++
		if attempts > 1 {
			metrics.RecordDirectoryRetry()
		}
		var err error
		out, err = fn()
		if err == nil || errors.Is(err, ErrVersionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)

	if errors.Is(err, ErrVersionConflict) {
		r.log.Error(ctx, "directory write kept conflicting",
			logger.String("op", op),
			logger.String("profile_id", id),
			logger.Int("attempts", attempts),
		)
		metrics.RecordErrorByComponent("directory", "conflict_exhausted")
		return model.TalentProfile{}, model.WrapKind(op, model.ErrConflict, err)
	}
	return out, err
}
