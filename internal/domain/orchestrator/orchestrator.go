// Package orchestrator owns Runs and their ConnectorExecutions: it starts
// runs, dispatches one work message per connector, enforces the
// per-connector timeout and finalises runs from execution outcomes.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scout/internal/adapters/mq/queue"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// SettingsProvider exposes the settings a run is validated against.
type SettingsProvider interface {
	Settings() model.Settings
}

// SettingsFunc adapts a function to SettingsProvider.
type SettingsFunc func() model.Settings

// Settings calls f.
func (f SettingsFunc) Settings() model.Settings { return f() }

// Store persists runs. A nil store keeps them in memory only.
type Store interface {
	SaveRun(ctx context.Context, run model.Run) error
	LoadRuns(ctx context.Context) ([]model.Run, error)
}

// ReasonInterrupted is the error recorded on executions that were still
// open when the process stopped.
const ReasonInterrupted = "interrupted by restart"

// Orchestrator is the only component that mutates Runs.
type Orchestrator struct {
	dispatch queue.Publisher
	settings SettingsProvider
	store    Store
	timeout  time.Duration
	log      logger.Logger
	now      func() time.Time
	newID    func() string

	mu          sync.Mutex
	runs        map[string]*model.Run
	order       []string
	watchdogs   map[string]*time.Timer
	checkpoints map[string]time.Time
	stopped     bool
}

// New creates an orchestrator dispatching to the given publisher.
func New(dispatch queue.Publisher, settings SettingsProvider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatch:    dispatch,
		settings:    settings,
		timeout:     DefaultConnectorTimeout,
		log:         logger.Get().Named("orchestrator"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		runs:        make(map[string]*model.Run),
		watchdogs:   make(map[string]*time.Timer),
		checkpoints: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Timeout returns the per-execution budget.
func (o *Orchestrator) Timeout() time.Duration { return o.timeout }

// StartRun validates the request, creates a QUEUED run with one QUEUED
// execution per distinct connector and dispatches them. Validation
// failures return model.ErrConfiguration before anything is dispatched.
func (o *Orchestrator) StartRun(ctx context.Context, connectorIDs []string) (model.Run, error) {
	const op = "orchestrator.start_run"
	ids := distinct(connectorIDs)
	if len(ids) == 0 {
		return model.Run{}, model.NewKind(op, model.ErrConfiguration, "no connectors requested")
	}
	s := o.settings.Settings()
	if err := s.Thresholds.Validate(); err != nil {
		return model.Run{}, err
	}
	for _, id := range ids {
		enabled, known := s.Connectors[id]
		if !known {
			return model.Run{}, model.NewKind(op, model.ErrConfiguration, "unknown connector %q", id)
		}
		if !enabled {
			return model.Run{}, model.NewKind(op, model.ErrConfiguration, "connector %q is disabled", id)
		}
	}

	now := o.now()
	run := &model.Run{
		ID:         o.newID(),
		Connectors: ids,
		State:      model.RunQueued,
		CreatedAt:  now,
	}
	for _, id := range ids {
		run.Executions = append(run.Executions, model.ConnectorExecution{
			RunID:       run.ID,
			ConnectorID: id,
			State:       model.ExecutionQueued,
			QueuedAt:    now,
			Deadline:    now.Add(o.timeout),
		})
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return model.Run{}, model.NewKind(op, model.ErrInvalidState, "orchestrator stopped")
	}
	if err := o.saveLocked(ctx, *run); err != nil {
		o.mu.Unlock()
		return model.Run{}, err
	}
	o.runs[run.ID] = run
	o.order = append(o.order, run.ID)
	for _, id := range ids {
		o.armLocked(run.ID, id)
	}
	o.mu.Unlock()

	metrics.RecordRunStarted()
	o.log.Info(ctx, "run started",
		logger.String("run_id", run.ID),
		logger.Strings("connectors", ids),
		logger.Duration("timeout", o.timeout),
	)

	for _, id := range ids {
		if err := o.dispatch.Enqueue(ctx, queue.ConnectorExecution(run.ID, id)); err != nil {
			o.log.Error(ctx, "dispatch failed",
				logger.String("run_id", run.ID),
				logger.String("connector", id),
				logger.Error(err),
			)
			if _, rerr := o.ReportConnectorResult(ctx, run.ID, id, model.Failed(fmt.Errorf("dispatch: %w", err))); rerr != nil {
				return model.Run{}, rerr
			}
		}
	}
	return o.GetRun(run.ID)
}

// armLocked schedules the timeout report for one execution.
func (o *Orchestrator) armLocked(runID, connectorID string) {
	key := executionKey(runID, connectorID)
	budget := o.timeout
	o.watchdogs[key] = time.AfterFunc(budget, func() {
		ctx := context.Background()
		run, err := o.ReportConnectorResult(ctx, runID, connectorID, model.TimedOut(budget))
		if err != nil {
			o.log.Error(ctx, "watchdog report failed", logger.String("run_id", runID), logger.Error(err))
			return
		}
		if e, ok := run.Execution(connectorID); ok && e.TimedOut {
			o.log.Warn(ctx, "connector execution timed out",
				logger.String("run_id", runID),
				logger.String("connector", connectorID),
				logger.Duration("budget", budget),
			)
		}
	})
}

// BeginExecution marks a queued execution RUNNING. started is false when
// the execution already started or finished, which identifies a duplicate
// delivery. deadline is when the watchdog fails the execution.
func (o *Orchestrator) BeginExecution(ctx context.Context, runID, connectorID string) (started bool, deadline time.Time, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, exec, err := o.findLocked("orchestrator.begin_execution", runID, connectorID)
	if err != nil {
		return false, time.Time{}, err
	}
	if exec.State != model.ExecutionQueued {
		return false, exec.Deadline, nil
	}
	next := run.Clone()
	nextExec, _ := next.Execution(connectorID)
	if nextExec.State, err = nextExec.State.Next(model.ExecutionRunning); err != nil {
		return false, time.Time{}, err
	}
	nextExec.StartedAt = o.now()
	if next.State == model.RunQueued {
		next.State = model.RunRunning
		next.StartedAt = nextExec.StartedAt
	}
	if err := o.saveLocked(ctx, next); err != nil {
		return false, time.Time{}, err
	}
	*run = next
	o.log.Debug(ctx, "connector execution started",
		logger.String("run_id", runID),
		logger.String("connector", connectorID),
	)
	return true, nextExec.Deadline, nil
}

// ReportConnectorResult records the outcome of one execution and finalises
// the run once every execution is terminal. Reporting on a terminal
// execution is a no-op that returns the current run.
func (o *Orchestrator) ReportConnectorResult(ctx context.Context, runID, connectorID string, outcome model.ExecutionOutcome) (model.Run, error) {
	run, _, err := o.CompleteExecution(ctx, runID, connectorID, func() model.ExecutionOutcome { return outcome })
	return run, err
}

// CompleteExecution is ReportConnectorResult for a worker that still has
// to commit its results: commit runs only while the execution is not yet
// terminal, and its outcome is recorded atomically with it, so work that
// lost the race with the watchdog is never committed. applied reports
// whether commit ran.
func (o *Orchestrator) CompleteExecution(ctx context.Context, runID, connectorID string, commit func() model.ExecutionOutcome) (run model.Run, applied bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, exec, err := o.findLocked("orchestrator.report", runID, connectorID)
	if err != nil {
		return model.Run{}, false, err
	}
	if exec.State.Terminal() {
		metrics.RecordDuplicateDelivery("report")
		o.log.Debug(ctx, "duplicate connector report ignored",
			logger.String("run_id", runID),
			logger.String("connector", connectorID),
			logger.String("state", string(exec.State)),
		)
		return r.Clone(), false, nil
	}
	if err := o.recordLocked(ctx, r, exec.ConnectorID, commit()); err != nil {
		return model.Run{}, false, err
	}
	return r.Clone(), true, nil
}

// recordLocked applies outcome to a copy of run, persists it and only then
// swaps it in. A failed write leaves the execution open for the watchdog.
func (o *Orchestrator) recordLocked(ctx context.Context, run *model.Run, connectorID string, outcome model.ExecutionOutcome) error {
	runID := run.ID
	next := run.Clone()
	exec, _ := next.Execution(connectorID)
	var err error
	target := model.ExecutionFailed
	if outcome.Succeeded {
		target = model.ExecutionSucceeded
	}
	if exec.State, err = exec.State.Next(target); err != nil {
		return err
	}
	now := o.now()
	exec.FinishedAt = now
	exec.Records = outcome.Records
	exec.Rejected = outcome.Rejected
	exec.Error = outcome.Error
	exec.TimedOut = outcome.TimedOut
	settled := next.Settled()
	if settled {
		if next.State, err = next.State.Next(model.FinalState(next.Executions)); err != nil {
			return err
		}
		next.FinishedAt = now
	}
	if err := o.saveLocked(ctx, next); err != nil {
		return err
	}
	*run = next
	exec, _ = run.Execution(connectorID)
	o.disarmLocked(runID, connectorID)

	began := exec.StartedAt
	if began.IsZero() {
		began = exec.QueuedAt
	}
	metrics.RecordConnectorExecution(connectorID, string(exec.State), now.Sub(began))
	metrics.RecordConnectorRecords(connectorID, exec.Records, exec.Rejected)
	if exec.TimedOut {
		metrics.RecordConnectorTimeout(connectorID)
	}
	if exec.State == model.ExecutionSucceeded && began.After(o.checkpoints[connectorID]) {
		o.checkpoints[connectorID] = began
	}

	if settled {
		metrics.RecordRunFinished(string(run.State))
		fields := []logger.Field{
			logger.String("run_id", runID),
			logger.String("state", string(run.State)),
			logger.Int("executions", len(run.Executions)),
		}
		for _, f := range run.Failures() {
			fields = append(fields, logger.String("failed."+f.ConnectorID, f.Error))
		}
		o.log.Info(ctx, "run finalized", fields...)
	}
	return nil
}

func (o *Orchestrator) saveLocked(ctx context.Context, run model.Run) error {
	if o.store == nil {
		return nil
	}
	return o.store.SaveRun(ctx, run)
}

// Restore loads persisted runs. Executions that were still open when the
// process stopped are failed with ReasonInterrupted and their runs
// finalised; checkpoints are rebuilt from successful executions. It is
// meant to run once, before any run is started.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	if o.store == nil {
		return 0, nil
	}
	runs, err := o.store.LoadRuns(ctx)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })

	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = make(map[string]*model.Run, len(runs))
	o.order = o.order[:0]
	interrupted := 0
	for k := range runs {
		run := runs[k].Clone()
		if !run.State.Terminal() {
			if err := o.interrupt(&run); err != nil {
				return 0, err
			}
			if err := o.saveLocked(ctx, run); err != nil {
				return 0, err
			}
			interrupted++
		}
		for _, e := range run.Executions {
			began := e.StartedAt
			if began.IsZero() {
				began = e.QueuedAt
			}
			if e.State == model.ExecutionSucceeded && began.After(o.checkpoints[e.ConnectorID]) {
				o.checkpoints[e.ConnectorID] = began
			}
		}
		o.runs[run.ID] = &run
		o.order = append(o.order, run.ID)
	}
	o.log.Info(ctx, "runs restored",
		logger.Int("runs", len(runs)),
		logger.Int("interrupted", interrupted),
	)
	return len(runs), nil
}

func (o *Orchestrator) interrupt(run *model.Run) error {
	now := o.now()
	var err error
	for k := range run.Executions {
		e := &run.Executions[k]
		if e.State.Terminal() {
			continue
		}
		if e.State, err = e.State.Next(model.ExecutionFailed); err != nil {
			return err
		}
		e.Error = ReasonInterrupted
		e.FinishedAt = now
	}
	if run.State, err = run.State.Next(model.FinalState(run.Executions)); err != nil {
		return err
	}
	run.FinishedAt = now
	metrics.RecordRunFinished(string(run.State))
	return nil
}

func (o *Orchestrator) disarmLocked(runID, connectorID string) {
	key := executionKey(runID, connectorID)
	if t, ok := o.watchdogs[key]; ok {
		t.Stop()
		delete(o.watchdogs, key)
	}
}

func (o *Orchestrator) findLocked(op, runID, connectorID string) (*model.Run, *model.ConnectorExecution, error) {
	run, ok := o.runs[runID]
	if !ok {
		return nil, nil, model.NewKind(op, model.ErrNotFound, "run %s", runID)
	}
	exec, ok := run.Execution(connectorID)
	if !ok {
		return nil, nil, model.NewKind(op, model.ErrNotFound, "run %s has no connector %s", runID, connectorID)
	}
	return run, exec, nil
}

// GetRun returns a copy of a run.
func (o *Orchestrator) GetRun(runID string) (model.Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[runID]
	if !ok {
		return model.Run{}, model.NewKind("orchestrator.get_run", model.ErrNotFound, "run %s", runID)
	}
	return run.Clone(), nil
}

// ListRuns returns up to limit runs, newest first. A limit below one
// returns every run.
func (o *Orchestrator) ListRuns(limit int) []model.Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.order)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Run, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, o.runs[o.order[i]].Clone())
	}
	return out
}

// Checkpoint returns when the last successful execution of a connector
// began, for use as the next fetch's since.
func (o *Orchestrator) Checkpoint(connectorID string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.checkpoints[connectorID]
	return t, ok
}

// Counts returns the number of runs per state.
func (o *Orchestrator) Counts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int)
	for _, r := range o.runs {
		out[string(r.State)]++
	}
	return out
}

// Stop disarms every watchdog and refuses new runs.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	for key, t := range o.watchdogs {
		t.Stop()
		delete(o.watchdogs, key)
	}
}

func executionKey(runID, connectorID string) string {
	return runID + "/" + connectorID
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
