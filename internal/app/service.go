// Package service wires connectors, the orchestrator, the dedupe engine, the
// review inbox and the talent directory into the running pipeline, and
// exposes the operations the HTTP API needs.
package service

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/okian/scout/internal/adapters/connector"
	"github.com/okian/scout/internal/adapters/mq/queue"
	"github.com/okian/scout/internal/adapters/mq/worker"
	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/config"
	"github.com/okian/scout/internal/domain/dedupe"
	"github.com/okian/scout/internal/domain/inbox"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/orchestrator"
	"github.com/okian/scout/internal/domain/schedule"
	"github.com/okian/scout/internal/domain/scoring"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Service is the running talent-scouting pipeline.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger

	// Core components
	directory    repository.Directory
	closer       io.Closer
	records      repository.RecordStore
	logs         repository.LogStore
	state        *repository.SQLiteState
	registry     *connector.Registry
	queue        *queue.InMemoryQueue
	pool         *worker.Pool
	tracker      *worker.Tracker
	orchestrator *orchestrator.Orchestrator
	engine       *dedupe.Engine
	inbox        *inbox.Inbox
	planner      *schedule.Planner
	signal       *scoring.SignalScorer

	settingsMu sync.RWMutex
	settings   model.Settings

	// State
	started bool
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:    config.New(),
		logger: logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and starts every component.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting scout service...")

	if s.registry == nil {
		reg, err := connector.FromConfig(cfg.Connectors)
		if err != nil {
			return fmt.Errorf("connectors: %w", err)
		}
		s.registry = reg
	}
	if s.directory == nil {
		if err := s.openDirectory(ctx); err != nil {
			return err
		}
	}
	defer func() {
		if !s.started {
			_ = s.closeDirectory()
		}
	}()

	if err := s.loadSettings(ctx); err != nil {
		return err
	}

	if s.records == nil {
		s.records = repository.NewMemoryRecordStore()
	}
	if s.logs == nil {
		s.logs = repository.NewMemoryLogStore()
	}
	tiers := make(map[string]string, len(cfg.Connectors))
	for id, c := range cfg.Connectors {
		tiers[id] = c.Tier
	}
	s.signal = scoring.NewSignalScorer(tiers, nil)

	runOpts := []orchestrator.Option{orchestrator.WithConnectorTimeout(cfg.ConnectorTimeout())}
	engineOpts := []dedupe.Option{
		dedupe.WithScorer(scoring.NewSimilarityScorer(scoring.WithWeights(scoring.Weights(cfg.SimilarityWeights)))),
		dedupe.WithThresholds(s.settings.Thresholds),
		dedupe.WithMaxBlockSize(cfg.MaxBlockSize),
	}
	var (
		inboxOpts    []inbox.Option
		scheduleOpts []schedule.Option
	)
	if s.state != nil {
		runOpts = append(runOpts, orchestrator.WithStore(s.state))
		engineOpts = append(engineOpts, dedupe.WithStore(s.state))
		inboxOpts = append(inboxOpts, inbox.WithStore(s.state))
		scheduleOpts = append(scheduleOpts, schedule.WithStore(s.state))
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	s.tracker = worker.NewTracker(cfg.DeliveryTTL())
	s.orchestrator = orchestrator.New(s.queue, orchestrator.SettingsFunc(s.Settings), runOpts...)
	s.engine = dedupe.NewEngine(s.directory, engineOpts...)
	s.inbox = inbox.New(s.directory, s.records, s.engine, inboxOpts...)
	s.engine.SetReviewQueue(s.inbox)
	s.planner = schedule.New(scheduleOpts...)

	if err := s.restore(ctx); err != nil {
		return err
	}
	if err := s.ensureSchedules(ctx, cfg.ScheduleInterval()); err != nil {
		return err
	}

	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, worker.HandlerFunc(s.Handle),
		worker.WithTracker(s.tracker),
		worker.WithMaxAttempts(cfg.MaxAttempts),
		worker.WithDeadLetter(s.deadLetter),
	)
	s.pool.Start(ctx)
	s.redispatch(ctx)

	s.started = true
	s.logger.Info(ctx, "scout service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", cfg.QueueSize),
		logger.String("directory", cfg.DirectoryDriver),
		logger.Strings("connectors", s.registry.IDs()),
	)
	return nil
}

// loadSettings builds the runtime settings from configuration and overlays
// the ones an operator saved before a restart.
func (s *Service) loadSettings(ctx context.Context) error {
	s.settings = model.Settings{Thresholds: s.cfg.Thresholds(), Connectors: make(map[string]bool)}
	for _, id := range s.registry.IDs() {
		c, ok := s.cfg.Connectors[id]
		s.settings.Connectors[id] = !ok || c.Enabled
	}
	if s.state == nil {
		return nil
	}
	saved, ok, err := s.state.LoadSettings(ctx)
	if err != nil || !ok {
		return err
	}
	if err := saved.Thresholds.Validate(); err == nil {
		s.settings.Thresholds = saved.Thresholds
	}
	for id, on := range saved.Connectors {
		if _, known := s.settings.Connectors[id]; known {
			s.settings.Connectors[id] = on
		}
	}
	return nil
}

// restore reloads persisted workflow state. It runs before the workers
// start.
func (s *Service) restore(ctx context.Context) error {
	for _, step := range []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{"candidates", s.engine.Restore},
		{"inbox", s.inbox.Restore},
		{"runs", s.orchestrator.Restore},
		{"schedules", s.planner.Restore},
	} {
		n, err := step.fn(ctx)
		if err != nil {
			return fmt.Errorf("restore %s: %w", step.name, err)
		}
		if n > 0 {
			s.logger.Info(ctx, "state restored", logger.String("component", step.name), logger.Int("count", n))
		}
	}
	return nil
}

// redispatch queues every stored record that has neither a candidate nor a
// final resolution error, picking up work interrupted by a restart.
func (s *Service) redispatch(ctx context.Context) {
	n := 0
	for rec, err := range s.records.All(ctx) {
		if err != nil {
			s.logger.Error(ctx, "record scan failed", logger.Error(err))
			return
		}
		if rec.Archived || rec.ResolveError != "" || len(s.engine.History(rec.ID)) > 0 {
			continue
		}
		s.dispatchDedupe(ctx, rec.RunID, rec)
		n++
	}
	if n > 0 {
		s.logger.Info(ctx, "unresolved records requeued", logger.Int("count", n))
	}
}

func (s *Service) openDirectory(ctx context.Context) error {
	switch s.cfg.DirectoryDriver {
	case config.DirectorySQLite:
		d, err := repository.OpenSQLite(ctx, s.cfg.DirectoryPath)
		if err != nil {
			return fmt.Errorf("open directory: %w", err)
		}
		s.closer = d
		s.directory = repository.NewRetrying(d, repository.WithMaxRetries(s.cfg.MergeMaxRetries))
		s.records = d.Records()
		s.logs = d.Logs()
		s.state = d.State()
	default:
		s.directory = repository.NewMemoryDirectory()
	}
	return nil
}

// Stop drains the queue, stops the workers and closes the directory.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping scout service...")

	s.orchestrator.Stop()
	err := s.pool.Shutdown(ctx)
	if cerr := s.closeDirectory(); cerr != nil && err == nil {
		err = cerr
	}
	s.started = false
	s.logger.Info(ctx, "scout service stopped")
	return err
}

// closeDirectory releases a directory the service opened itself.
func (s *Service) closeDirectory() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	s.directory = nil
	s.records = nil
	s.logs = nil
	s.state = nil
	return err
}

// Started reports whether the service is running.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started": s.started,
		"workers": s.cfg.WorkerCount,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len(ctx)
	profiles := s.directory.Count(ctx)
	pending := s.inbox.PendingCount()
	stats["workers"] = s.pool.Size()
	stats["queue_length"] = queueLen
	stats["queue_capacity"] = s.cfg.QueueSize
	stats["processed"] = s.pool.Processed()
	stats["tracked_deliveries"] = s.tracker.Size()
	stats["profiles"] = profiles
	stats["records"] = s.records.Count(ctx)
	stats["inbox_pending"] = pending
	stats["schedules"] = len(s.planner.List())
	stats["runs"] = s.orchestrator.Counts()
	stats["candidates"] = s.engine.Stats()
	stats["goroutines"] = runtime.NumGoroutine()

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateDirectoryProfiles(profiles)
	metrics.UpdateInboxPending(pending)
	return stats
}
