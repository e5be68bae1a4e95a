package service

import (
	"context"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schedule"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// ListSchedules returns every connector schedule.
func (s *Service) ListSchedules(_ context.Context) ([]model.Schedule, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.planner.List(), nil
}

// GetSchedule returns the schedule of one connector.
func (s *Service) GetSchedule(_ context.Context, connectorID string) (model.Schedule, error) {
	if err := s.ready(); err != nil {
		return model.Schedule{}, err
	}
	return s.planner.Get(connectorID)
}

// CreateSchedule adds a schedule for a registered connector.
func (s *Service) CreateSchedule(ctx context.Context, sched model.Schedule) (model.Schedule, error) {
	if err := s.ready(); err != nil {
		return model.Schedule{}, err
	}
	if _, err := s.registry.Get(sched.ConnectorID); err != nil {
		return model.Schedule{}, model.NewKind("service.create_schedule", model.ErrConfiguration, "unknown connector %q", sched.ConnectorID)
	}
	return s.planner.Create(ctx, sched)
}

// UpdateSchedule patches the schedule of one connector.
func (s *Service) UpdateSchedule(ctx context.Context, connectorID string, patch schedule.Patch) (model.Schedule, error) {
	if err := s.ready(); err != nil {
		return model.Schedule{}, err
	}
	out, err := s.planner.Update(ctx, connectorID, patch)
	if err != nil {
		return model.Schedule{}, err
	}
	s.logger.Info(ctx, "schedule updated",
		logger.String("connector", out.ConnectorID),
		logger.String("cadence", out.Cadence),
		logger.Bool("enabled", out.Enabled),
	)
	return out, nil
}

// DeleteSchedule removes the schedule of one connector. The connector then
// only runs on demand.
func (s *Service) DeleteSchedule(ctx context.Context, connectorID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.planner.Delete(ctx, connectorID)
}

// ListLogs pages through the ingestion logs, newest first.
func (s *Service) ListLogs(ctx context.Context, f repository.LogFilter) (repository.LogPage, error) {
	if err := s.ready(); err != nil {
		return repository.LogPage{}, err
	}
	return s.logs.List(ctx, f)
}

// GetLog returns one ingestion log.
func (s *Service) GetLog(ctx context.Context, id string) (model.IngestionLog, error) {
	if err := s.ready(); err != nil {
		return model.IngestionLog{}, err
	}
	return s.logs.Get(ctx, id)
}

// AddLog records an ingestion log supplied by an operator or an external
// fetcher.
func (s *Service) AddLog(ctx context.Context, l model.IngestionLog) (model.IngestionLog, error) {
	if err := s.ready(); err != nil {
		return model.IngestionLog{}, err
	}
	out, err := s.logs.Add(ctx, l)
	if err != nil {
		return model.IngestionLog{}, err
	}
	metrics.RecordIngestionLog(out.ConnectorID)
	return out, nil
}

// DeleteLog removes one ingestion log.
func (s *Service) DeleteLog(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.logs.Delete(ctx, id)
}
