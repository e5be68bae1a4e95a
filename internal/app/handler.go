package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/okian/scout/internal/adapters/connector"
	"github.com/okian/scout/internal/adapters/mq/queue"
	"github.com/okian/scout/internal/adapters/mq/worker"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/scoring"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Handle processes one queue message; it is the worker pool's handler.
func (s *Service) Handle(ctx context.Context, m queue.Message) error {
	switch m.Kind {
	case queue.KindConnectorExecution:
		return s.execute(ctx, m)
	case queue.KindDedupe:
		return s.resolve(ctx, m)
	default:
		return worker.Permanent(fmt.Errorf("unknown message kind %q", m.Kind))
	}
}

// execute runs one connector execution. Fetched records are buffered and
// committed together with the success report, so a failed or timed-out
// execution ingests nothing. Connector failures are reported on the
// execution and never retried by the pool.
func (s *Service) execute(ctx context.Context, m queue.Message) error {
	log := s.logger.With(logger.String("run_id", m.RunID), logger.String("connector", m.ConnectorID))

	started, deadline, err := s.orchestrator.BeginExecution(ctx, m.RunID, m.ConnectorID)
	if err != nil {
		return worker.Permanent(err)
	}
	if !started {
		metrics.RecordDuplicateDelivery(m.Kind)
		log.Debug(ctx, "execution already started, delivery dropped")
		return nil
	}

	conn, err := s.registry.Get(m.ConnectorID)
	if err != nil {
		_, rerr := s.orchestrator.ReportConnectorResult(ctx, m.RunID, m.ConnectorID, model.Failed(err))
		return rerr
	}

	fetchCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	fetchedAt := time.Now().UTC()
	records, rejected, err := s.fetch(fetchCtx, conn, m.RunID)
	s.logFetch(ctx, m, fetchedAt, records, rejected, err)
	if err != nil {
		outcome := model.Failed(err)
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			outcome = model.TimedOut(s.orchestrator.Timeout())
		}
		log.Warn(ctx, "connector execution failed", logger.Error(err))
		_, rerr := s.orchestrator.ReportConnectorResult(ctx, m.RunID, m.ConnectorID, outcome)
		return rerr
	}

	run, applied, err := s.orchestrator.CompleteExecution(ctx, m.RunID, m.ConnectorID, func() model.ExecutionOutcome {
		for _, rec := range records {
			if _, err := s.records.Put(ctx, rec); err != nil {
				return model.Failed(err)
			}
		}
		return model.Succeeded(len(records), rejected)
	})
	if err != nil {
		return err
	}
	exec, _ := run.Execution(m.ConnectorID)
	if !applied || exec.State != model.ExecutionSucceeded {
		log.Warn(ctx, "execution results discarded", logger.String("state", string(exec.State)))
		return nil
	}

	for _, rec := range records {
		s.dispatchDedupe(ctx, m.RunID, rec)
	}
	log.Info(ctx, "connector execution finished",
		logger.Int("records", len(records)),
		logger.Int("rejected", rejected),
	)
	return nil
}

// fetch drains the connector and normalizes every raw record. Malformed
// records are counted as rejected; a fetch error aborts the execution.
func (s *Service) fetch(ctx context.Context, conn connector.Connector, runID string) ([]model.CandidateRecord, int, error) {
	since, _ := s.orchestrator.Checkpoint(conn.ID())
	now := time.Now().UTC()

	var records []model.CandidateRecord
	seen := make(map[string]struct{})
	rejected := 0
	for raw, err := range conn.Fetch(ctx, since) {
		if err != nil {
			return nil, 0, err
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		rec, err := conn.Normalize(raw)
		if err != nil {
			rejected++
			s.logger.Warn(ctx, "record rejected",
				logger.String("run_id", runID),
				logger.String("connector", conn.ID()),
				logger.Error(err),
			)
			continue
		}
		rec.Attributes = scoring.Tag(rec.Attributes)
		rec.RunID = runID
		rec.ID = model.RecordID(runID, rec.SourceID, rec.NativeID)
		rec.IngestedAt = now
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}
	return records, rejected, nil
}

// logFetch records one ingestion log for a connector fetch. A failed write
// is logged and does not affect the execution.
func (s *Service) logFetch(ctx context.Context, m queue.Message, at time.Time, records []model.CandidateRecord, rejected int, cause error) {
	entry := model.IngestionLog{
		ConnectorID: m.ConnectorID,
		RunID:       m.RunID,
		Kind:        model.LogKindFetch,
		FetchedAt:   at,
		ContentHash: contentHash(records),
		Records:     len(records),
		Rejected:    rejected,
	}
	if c, ok := s.cfg.Connectors[m.ConnectorID]; ok {
		entry.URL = c.URL
		if entry.URL == "" {
			entry.URL = c.Path
		}
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if _, err := s.logs.Add(ctx, entry); err != nil {
		s.logger.Warn(ctx, "ingestion log not written",
			logger.String("run_id", m.RunID),
			logger.String("connector", m.ConnectorID),
			logger.Error(err),
		)
		return
	}
	metrics.RecordIngestionLog(m.ConnectorID)
}

// contentHash fingerprints a fetch so identical pulls are recognizable.
func contentHash(records []model.CandidateRecord) string {
	if len(records) == 0 {
		return ""
	}
	h := sha256.New()
	for _, rec := range records {
		_, _ = h.Write([]byte(rec.NativeID + "\x00" + rec.Attributes.Fingerprint() + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// dispatchDedupe queues a record for resolution, resolving it inline when
// the queue refuses it.
func (s *Service) dispatchDedupe(ctx context.Context, runID string, rec model.CandidateRecord) {
	err := s.queue.Enqueue(ctx, queue.Dedupe(runID, rec.ID))
	if err == nil {
		return
	}
	s.logger.Warn(ctx, "dedupe not queued, resolving inline",
		logger.String("record_id", rec.ID),
		logger.Error(err),
	)
	if _, err := s.engine.Resolve(ctx, rec); err != nil {
		metrics.RecordErrorByComponent("dedupe", "inline_resolve")
		s.logger.Error(ctx, "inline resolve failed", logger.String("record_id", rec.ID), logger.Error(err))
		s.markUnresolved(ctx, rec.ID, err)
	}
}

// resolve runs the dedupe engine on one stored record.
func (s *Service) resolve(ctx context.Context, m queue.Message) error {
	rec, err := s.records.Get(ctx, m.RecordID)
	if err != nil {
		return worker.Permanent(err)
	}
	if rec.Archived {
		return nil
	}
	if _, err := s.engine.Resolve(ctx, rec); err != nil {
		if errors.Is(err, model.ErrInvalidState) {
			return worker.Permanent(err)
		}
		return err
	}
	if rec.ResolveError != "" {
		if _, err := s.records.MarkUnresolved(ctx, rec.ID, ""); err != nil {
			s.logger.Warn(ctx, "resolve error not cleared", logger.String("record_id", rec.ID), logger.Error(err))
		}
	}
	return nil
}

// deadLetter receives the messages the worker pool gave up on. A dedupe
// message that failed for good leaves its record unresolved.
func (s *Service) deadLetter(ctx context.Context, m queue.Message, err error) {
	if m.Kind != queue.KindDedupe {
		return
	}
	s.markUnresolved(ctx, m.RecordID, err)
}

// markUnresolved records a final resolution failure on the record, unless
// the record was resolved after all.
func (s *Service) markUnresolved(ctx context.Context, recordID string, cause error) {
	if _, err := s.engine.CandidateForRecord(recordID); err == nil {
		return
	}
	rec, err := s.records.MarkUnresolved(ctx, recordID, cause.Error())
	if err != nil {
		s.logger.Error(ctx, "record not marked unresolved", logger.String("record_id", recordID), logger.Error(err))
		return
	}
	metrics.RecordDedupeUnresolved(rec.SourceID)
	s.logger.Warn(ctx, "record left unresolved",
		logger.String("record_id", rec.ID),
		logger.String("run_id", rec.RunID),
		logger.String("connector", rec.SourceID),
		logger.Error(cause),
	)
}
