package worker

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultDeliveryTTL is how long a completed key is remembered.
const DefaultDeliveryTTL = time.Hour

// Tracker remembers idempotency keys of work that is in flight or done so a
// redelivered message is dropped instead of executed twice.
type Tracker struct {
	cache *cache.Cache
}

// NewTracker creates a tracker whose keys expire after ttl. Expired keys are
// removed by Sweep, which the pool calls periodically.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &Tracker{cache: cache.New(ttl, 0)}
}

// SeenAndRecord records key and reports whether it was already recorded.
func (t *Tracker) SeenAndRecord(key string) bool {
	return t.cache.Add(key, struct{}{}, cache.DefaultExpiration) != nil
}

// Unrecord forgets key so a retry of failed work can run.
func (t *Tracker) Unrecord(key string) {
	t.cache.Delete(key)
}

// Size returns the number of remembered keys, expired ones included until
// the next Sweep.
func (t *Tracker) Size() int {
	return t.cache.ItemCount()
}

// Sweep drops expired keys.
func (t *Tracker) Sweep() {
	t.cache.DeleteExpired()
}
