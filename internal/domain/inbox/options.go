package inbox

import (
	"time"

	"github.com/okian/scout/pkg/logger"
)

// Option applies a configuration option to the Inbox.
type Option func(*Inbox)

// WithStore persists items and the audit trail through s.
func WithStore(s Store) Option {
	return func(i *Inbox) {
		i.store = s
	}
}

// WithLogger sets the inbox logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Inbox) {
		if l != nil {
			i.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(i *Inbox) {
		if fn != nil {
			i.now = fn
		}
	}
}

// WithIDGenerator overrides inbox item id generation.
func WithIDGenerator(fn func() string) Option {
	return func(i *Inbox) {
		if fn != nil {
			i.newID = fn
		}
	}
}
