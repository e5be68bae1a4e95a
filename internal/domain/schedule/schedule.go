// Package schedule keeps the per-connector cadences the scheduler triggers
// runs from.
package schedule

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
)

// Store persists schedules. A nil store keeps them in memory only.
type Store interface {
	SaveSchedule(ctx context.Context, s model.Schedule) error
	DeleteSchedule(ctx context.Context, connectorID string) error
	LoadSchedules(ctx context.Context) ([]model.Schedule, error)
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Cadence   *string
	Enabled   *bool
	NextDueAt *time.Time
}

// Planner owns the schedules.
type Planner struct {
	store Store
	log   logger.Logger
	now   func() time.Time

	mu    sync.RWMutex
	items map[string]model.Schedule
}

// New creates a planner.
func New(opts ...Option) *Planner {
	p := &Planner{
		log:   logger.Get().Named("schedule"),
		now:   func() time.Time { return time.Now().UTC() },
		items: make(map[string]model.Schedule),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseCadence validates a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 15m".
func ParseCadence(op, cadence string) (cron.Schedule, error) {
	cadence = strings.TrimSpace(cadence)
	if cadence == "" {
		return nil, model.NewKind(op, model.ErrConfiguration, "empty cadence")
	}
	sched, err := cron.ParseStandard(cadence)
	if err != nil {
		return nil, model.WrapKind(op, model.ErrConfiguration, err)
	}
	return sched, nil
}

// Restore loads persisted schedules and returns how many were read.
func (p *Planner) Restore(ctx context.Context) (int, error) {
	if p.store == nil {
		return 0, nil
	}
	all, err := p.store.LoadSchedules(ctx)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range all {
		p.items[s.ConnectorID] = s
	}
	return len(all), nil
}

// Ensure installs a default schedule for connectorID unless one exists. A
// persisted schedule always wins over the configured default.
func (p *Planner) Ensure(ctx context.Context, connectorID, cadence string, enabled bool) (model.Schedule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.items[connectorID]; ok {
		return s, nil
	}
	if _, err := ParseCadence("schedule.ensure", cadence); err != nil {
		return model.Schedule{}, err
	}
	s := model.Schedule{ConnectorID: connectorID, Cadence: strings.TrimSpace(cadence), Enabled: enabled}
	return s, p.putLocked(ctx, s)
}

// Create adds a schedule. It fails with model.ErrConflict when the
// connector already has one.
func (p *Planner) Create(ctx context.Context, s model.Schedule) (model.Schedule, error) {
	const op = "schedule.create"
	s.ConnectorID = strings.TrimSpace(s.ConnectorID)
	if s.ConnectorID == "" {
		return model.Schedule{}, model.NewKind(op, model.ErrConfiguration, "missing connector")
	}
	if _, err := ParseCadence(op, s.Cadence); err != nil {
		return model.Schedule{}, err
	}
	s.Cadence = strings.TrimSpace(s.Cadence)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[s.ConnectorID]; ok {
		return model.Schedule{}, model.NewKind(op, model.ErrConflict, "schedule for %s exists", s.ConnectorID)
	}
	if err := p.putLocked(ctx, s); err != nil {
		return model.Schedule{}, err
	}
	p.log.Info(ctx, "schedule created",
		logger.String("connector", s.ConnectorID),
		logger.String("cadence", s.Cadence),
		logger.Bool("enabled", s.Enabled),
	)
	return s, nil
}

// Get returns the schedule of one connector.
func (p *Planner) Get(connectorID string) (model.Schedule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.items[connectorID]
	if !ok {
		return model.Schedule{}, model.NewKind("schedule.get", model.ErrNotFound, "schedule %s", connectorID)
	}
	return s, nil
}

// List returns every schedule ordered by connector.
func (p *Planner) List() []model.Schedule {
	p.mu.RLock()
	out := make([]model.Schedule, 0, len(p.items))
	for _, s := range p.items {
		out = append(out, s)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })
	return out
}

// Update applies a patch. A changed cadence moves the next due time to the
// next tick of the new cadence unless the patch sets it explicitly.
func (p *Planner) Update(ctx context.Context, connectorID string, patch Patch) (model.Schedule, error) {
	const op = "schedule.update"
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.items[connectorID]
	if !ok {
		return model.Schedule{}, model.NewKind(op, model.ErrNotFound, "schedule %s", connectorID)
	}
	if patch.Cadence != nil {
		sched, err := ParseCadence(op, *patch.Cadence)
		if err != nil {
			return model.Schedule{}, err
		}
		s.Cadence = strings.TrimSpace(*patch.Cadence)
		s.NextDueAt = sched.Next(p.now())
	}
	if patch.Enabled != nil {
		s.Enabled = *patch.Enabled
	}
	if patch.NextDueAt != nil {
		s.NextDueAt = patch.NextDueAt.UTC()
	}
	if err := p.putLocked(ctx, s); err != nil {
		return model.Schedule{}, err
	}
	return s, nil
}

// Delete removes a schedule.
func (p *Planner) Delete(ctx context.Context, connectorID string) error {
	const op = "schedule.delete"
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[connectorID]; !ok {
		return model.NewKind(op, model.ErrNotFound, "schedule %s", connectorID)
	}
	if p.store != nil {
		if err := p.store.DeleteSchedule(ctx, connectorID); err != nil {
			return err
		}
	}
	delete(p.items, connectorID)
	p.log.Info(ctx, "schedule deleted", logger.String("connector", connectorID))
	return nil
}

// Due returns the connectors whose schedule should trigger at now, sorted.
func (p *Planner) Due(now time.Time) []string {
	p.mu.RLock()
	var out []string
	for id, s := range p.items {
		if s.Due(now) {
			out = append(out, id)
		}
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}

// MarkRun records that a run was started for connectorIDs at and moves each
// schedule to its next tick. Unknown connectors are skipped.
func (p *Planner) MarkRun(ctx context.Context, connectorIDs []string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range connectorIDs {
		s, ok := p.items[id]
		if !ok {
			continue
		}
		sched, err := ParseCadence("schedule.mark_run", s.Cadence)
		if err != nil {
			return err
		}
		s.LastRunAt = at
		s.NextDueAt = sched.Next(at)
		if err := p.putLocked(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) putLocked(ctx context.Context, s model.Schedule) error {
	if p.store != nil {
		if err := p.store.SaveSchedule(ctx, s); err != nil {
			return err
		}
	}
	p.items[s.ConnectorID] = s
	return nil
}
