package repository

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/okian/scout/internal/domain/model"
)

// MemoryRecordStore is an in-process RecordStore.
type MemoryRecordStore struct {
	opts    options
	mu      sync.RWMutex
	records map[string]model.CandidateRecord
}

var _ RecordStore = (*MemoryRecordStore)(nil)

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore(opts ...Option) *MemoryRecordStore {
	return &MemoryRecordStore{opts: applyOptions(opts), records: make(map[string]model.CandidateRecord)}
}

// Put implements RecordStore.
func (s *MemoryRecordStore) Put(_ context.Context, rec model.CandidateRecord) (bool, error) {
	if rec.ID == "" {
		return false, model.NewKind("records.put", model.ErrConnector, "record without id from %s", rec.SourceID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return false, nil
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = s.opts.now()
	}
	rec.Attributes = rec.Attributes.Clone()
	s.records[rec.ID] = rec
	return true, nil
}

// Get implements RecordStore.
func (s *MemoryRecordStore) Get(_ context.Context, id string) (model.CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return model.CandidateRecord{}, model.NewKind("records.get", model.ErrNotFound, "record %s", id)
	}
	rec.Attributes = rec.Attributes.Clone()
	return rec, nil
}

// Archive implements RecordStore.
func (s *MemoryRecordStore) Archive(_ context.Context, id string) (model.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return model.CandidateRecord{}, model.NewKind("records.archive", model.ErrNotFound, "record %s", id)
	}
	if !rec.Archived {
		rec.Archived = true
		rec.ArchivedAt = s.opts.now()
		s.records[id] = rec
	}
	return rec, nil
}

// ByExecution implements RecordStore.
func (s *MemoryRecordStore) ByExecution(_ context.Context, runID, connectorID string) ([]model.CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CandidateRecord
	for _, rec := range s.records {
		if rec.RunID == runID && rec.SourceID == connectorID {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(out []model.CandidateRecord) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.Before(out[j].IngestedAt)
		}
		if out[i].NativeID != out[j].NativeID {
			return out[i].NativeID < out[j].NativeID
		}
		return out[i].ID < out[j].ID
	})
}

// MarkUnresolved implements RecordStore.
func (s *MemoryRecordStore) MarkUnresolved(_ context.Context, id, reason string) (model.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return model.CandidateRecord{}, model.NewKind("records.mark_unresolved", model.ErrNotFound, "record %s", id)
	}
	rec.ResolveError = reason
	s.records[id] = rec
	return rec, nil
}

// Unresolved implements RecordStore.
func (s *MemoryRecordStore) Unresolved(_ context.Context, runID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, rec := range s.records {
		if rec.RunID == runID && rec.ResolveError != "" {
			out[rec.SourceID]++
		}
	}
	return out, nil
}

// All implements RecordStore.
func (s *MemoryRecordStore) All(_ context.Context) iter.Seq2[model.CandidateRecord, error] {
	s.mu.RLock()
	out := make([]model.CandidateRecord, 0, len(s.records))
	for _, rec := range s.records {
		rec.Attributes = rec.Attributes.Clone()
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sortRecords(out)
	return func(yield func(model.CandidateRecord, error) bool) {
		for _, rec := range out {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Count implements RecordStore.
func (s *MemoryRecordStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
