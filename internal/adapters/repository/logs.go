package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/okian/scout/internal/domain/model"
)

// LogStore keeps the ingestion logs: one entry per fetch from a source.
type LogStore interface {
	// Add stores log, assigning an id and a fetch time when they are empty.
	Add(ctx context.Context, log model.IngestionLog) (model.IngestionLog, error)
	Get(ctx context.Context, id string) (model.IngestionLog, error)
	// List returns logs matching filter, newest first.
	List(ctx context.Context, filter LogFilter) (LogPage, error)
	Delete(ctx context.Context, id string) error
}

// LogFilter narrows LogStore.List.
type LogFilter struct {
	ConnectorID string
	Kind        string
	Page        int
	PageSize    int
}

// LogPage is one page of ingestion logs.
type LogPage struct {
	Items    []model.IngestionLog
	Total    int
	Page     int
	PageSize int
}

func (f LogFilter) normalize() LogFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	f.ConnectorID = strings.TrimSpace(f.ConnectorID)
	f.Kind = strings.TrimSpace(f.Kind)
	return f
}

func (f LogFilter) matches(l model.IngestionLog) bool {
	return (f.ConnectorID == "" || l.ConnectorID == f.ConnectorID) && (f.Kind == "" || l.Kind == f.Kind)
}

func prepareLog(opts options, log model.IngestionLog) (model.IngestionLog, error) {
	log.ConnectorID = strings.TrimSpace(log.ConnectorID)
	if log.ConnectorID == "" {
		return model.IngestionLog{}, model.NewKind("logs.add", model.ErrConfiguration, "missing connector")
	}
	if log.ID == "" {
		log.ID = opts.newID()
	}
	if log.Kind == "" {
		log.Kind = model.LogKindManual
	}
	if log.FetchedAt.IsZero() {
		log.FetchedAt = opts.now()
	}
	return log, nil
}

// MemoryLogStore is an in-process LogStore.
type MemoryLogStore struct {
	opts options
	mu   sync.RWMutex
	logs map[string]model.IngestionLog
}

var _ LogStore = (*MemoryLogStore)(nil)

// NewMemoryLogStore creates an empty store.
func NewMemoryLogStore(opts ...Option) *MemoryLogStore {
	return &MemoryLogStore{opts: applyOptions(opts), logs: make(map[string]model.IngestionLog)}
}

// Add implements LogStore.
func (s *MemoryLogStore) Add(_ context.Context, log model.IngestionLog) (model.IngestionLog, error) {
	log, err := prepareLog(s.opts, log)
	if err != nil {
		return model.IngestionLog{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[log.ID]; ok {
		return model.IngestionLog{}, model.NewKind("logs.add", model.ErrConflict, "log %s exists", log.ID)
	}
	s.logs[log.ID] = cloneLog(log)
	return log, nil
}

// Get implements LogStore.
func (s *MemoryLogStore) Get(_ context.Context, id string) (model.IngestionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[id]
	if !ok {
		return model.IngestionLog{}, model.NewKind("logs.get", model.ErrNotFound, "log %s", id)
	}
	return cloneLog(log), nil
}

// List implements LogStore.
func (s *MemoryLogStore) List(_ context.Context, filter LogFilter) (LogPage, error) {
	filter = filter.normalize()
	s.mu.RLock()
	matched := make([]model.IngestionLog, 0, len(s.logs))
	for _, l := range s.logs {
		if filter.matches(l) {
			matched = append(matched, l)
		}
	}
	s.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].FetchedAt.Equal(matched[j].FetchedAt) {
			return matched[i].FetchedAt.After(matched[j].FetchedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	page := LogPage{Total: len(matched), Page: filter.Page, PageSize: filter.PageSize}
	from := (filter.Page - 1) * filter.PageSize
	for i := from; i < len(matched) && i < from+filter.PageSize; i++ {
		page.Items = append(page.Items, cloneLog(matched[i]))
	}
	return page, nil
}

// Delete implements LogStore.
func (s *MemoryLogStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[id]; !ok {
		return model.NewKind("logs.delete", model.ErrNotFound, "log %s", id)
	}
	delete(s.logs, id)
	return nil
}

func cloneLog(l model.IngestionLog) model.IngestionLog {
	if l.Meta != nil {
		meta := make(map[string]string, len(l.Meta))
		for k, v := range l.Meta {
			meta[k] = v
		}
		l.Meta = meta
	}
	return l
}
