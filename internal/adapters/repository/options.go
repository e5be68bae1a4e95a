package repository

import (
	"time"

	"github.com/google/uuid"
)

// Option applies a configuration option to a directory implementation.
type Option func(*options)

type options struct {
	newID func() string
	now   func() time.Time
}

func defaultOptions() options {
	return options{
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithIDGenerator overrides profile id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}
