package service

import (
	"context"
	"time"

	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// RunScheduler checks the connector schedules each interval until ctx is
// done and starts one run over the connectors that are due and enabled.
// Connectors configured without a cadence get "@every interval". A
// non-positive interval disables scheduling.
func (s *Service) RunScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.ensureSchedules(ctx, interval); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "scheduler started", logger.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.scheduleOnce(ctx, now.UTC())
		}
	}
}

// ensureSchedules installs a schedule for every registered connector that
// has none yet. A configured cadence always applies; otherwise one is
// derived from interval, and nothing is installed when interval is zero.
func (s *Service) ensureSchedules(ctx context.Context, interval time.Duration) error {
	settings := s.Settings()
	for _, id := range s.registry.IDs() {
		cadence := s.cfg.Connectors[id].Schedule
		if cadence == "" {
			if interval <= 0 {
				continue
			}
			cadence = "@every " + interval.String()
		}
		if _, err := s.planner.Ensure(ctx, id, cadence, settings.Connectors[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) scheduleOnce(ctx context.Context, now time.Time) {
	settings := s.Settings()
	var due []string
	for _, id := range s.planner.Due(now) {
		if settings.Connectors[id] {
			due = append(due, id)
		}
	}
	if len(due) == 0 {
		s.logger.Debug(ctx, "scheduler tick skipped, nothing due")
		return
	}
	run, err := s.StartRun(ctx, due)
	if err != nil {
		s.logger.Error(ctx, "scheduled run not started", logger.Strings("connectors", due), logger.Error(err))
		return
	}
	if err := s.planner.MarkRun(ctx, due, now); err != nil {
		s.logger.Error(ctx, "schedule update failed", logger.String("run_id", run.ID), logger.Error(err))
	}
	for _, id := range due {
		metrics.RecordScheduleTrigger(id)
	}
	s.logger.Info(ctx, "scheduled run started", logger.String("run_id", run.ID), logger.Strings("connectors", due))
}
