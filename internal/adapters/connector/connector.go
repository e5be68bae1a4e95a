// Package connector adapts external talent sources to one fetch/normalize
// capability. The orchestrator and the dedupe engine only see Connector;
// concrete sources stay behind the Registry.
package connector

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/okian/scout/internal/domain/model"
)

// RawRecord is one source record as decoded from its payload.
type RawRecord map[string]any

// Connector is the capability every source implements.
type Connector interface {
	// ID is the configured connector id.
	ID() string
	// Fetch lazily yields the records changed since the given time. The
	// sequence is finite and can be restarted from any checkpoint. A zero
	// since means everything.
	Fetch(ctx context.Context, since time.Time) iter.Seq2[RawRecord, error]
	// Normalize maps a raw record onto the canonical attribute set. A
	// malformed record fails with model.ErrConnector.
	Normalize(raw RawRecord) (model.CandidateRecord, error)
}

// Fetcher is the source-specific half of a connector.
type Fetcher interface {
	Fetch(ctx context.Context, since time.Time) iter.Seq2[RawRecord, error]
}

// Source joins a Fetcher with a Normalizer under an id.
type Source struct {
	id         string
	fetcher    Fetcher
	normalizer *Normalizer
}

// NewSource builds a connector from its parts.
func NewSource(id string, f Fetcher, n *Normalizer) *Source {
	if n == nil {
		n = NewNormalizer(nil)
	}
	return &Source{id: id, fetcher: f, normalizer: n}
}

// ID returns the connector id.
func (s *Source) ID() string { return s.id }

// Fetch delegates to the fetcher.
func (s *Source) Fetch(ctx context.Context, since time.Time) iter.Seq2[RawRecord, error] {
	return s.fetcher.Fetch(ctx, since)
}

// Normalize maps raw onto a record attributed to this connector.
func (s *Source) Normalize(raw RawRecord) (model.CandidateRecord, error) {
	rec, err := s.normalizer.Normalize(raw)
	if err != nil {
		return model.CandidateRecord{}, model.WrapKind("connector."+s.id, model.ErrConnector, err)
	}
	rec.SourceID = s.id
	return rec, nil
}

// Registry holds connectors by id.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds c. Ids are unique.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connectors[c.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConnector, c.ID())
	}
	r.connectors[c.ID()] = c
	return nil
}

// Get returns the connector registered under id.
func (r *Registry) Get(id string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok {
		return nil, model.NewKind("connector.get", model.ErrNotFound, "connector %q", id)
	}
	return c, nil
}

// IDs lists registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
