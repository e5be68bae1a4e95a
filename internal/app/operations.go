package service

import (
	"context"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/inbox"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
)

// recordAudit records an operator action whose effect already happened; a failed
// write is logged rather than reported.
func (s *Service) recordAudit(ctx context.Context, entry model.AuditEntry) {
	if _, err := s.inbox.Record(ctx, entry); err != nil {
		s.logger.Error(ctx, "audit write failed",
			logger.String("action", entry.Action),
			logger.String("actor", entry.Actor),
			logger.Error(err),
		)
	}
}

func (s *Service) ready() error {
	if !s.Started() {
		return ErrNotStarted
	}
	return nil
}

// StartRun starts a run over the given connectors.
func (s *Service) StartRun(ctx context.Context, connectorIDs []string) (model.Run, error) {
	if err := s.ready(); err != nil {
		return model.Run{}, err
	}
	return s.orchestrator.StartRun(ctx, connectorIDs)
}

// GetRun returns one run.
func (s *Service) GetRun(ctx context.Context, id string) (model.Run, error) {
	if err := s.ready(); err != nil {
		return model.Run{}, err
	}
	run, err := s.orchestrator.GetRun(id)
	if err != nil {
		return model.Run{}, err
	}
	return s.withUnresolved(ctx, run)
}

// ListRuns returns runs newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	runs := s.orchestrator.ListRuns(limit)
	for k := range runs {
		run, err := s.withUnresolved(ctx, runs[k])
		if err != nil {
			return nil, err
		}
		runs[k] = run
	}
	return runs, nil
}

// withUnresolved fills in how many records of each execution could not be
// resolved.
func (s *Service) withUnresolved(ctx context.Context, run model.Run) (model.Run, error) {
	counts, err := s.records.Unresolved(ctx, run.ID)
	if err != nil {
		return model.Run{}, err
	}
	for k := range run.Executions {
		run.Executions[k].Unresolved = counts[run.Executions[k].ConnectorID]
	}
	return run, nil
}

// ReportConnectorResult accepts a result reported by an external worker.
func (s *Service) ReportConnectorResult(ctx context.Context, runID, connectorID string, outcome model.ExecutionOutcome) (model.Run, error) {
	if err := s.ready(); err != nil {
		return model.Run{}, err
	}
	return s.orchestrator.ReportConnectorResult(ctx, runID, connectorID, outcome)
}

// SearchTalents pages through the directory.
func (s *Service) SearchTalents(ctx context.Context, f repository.Filter) (repository.Page, error) {
	if err := s.ready(); err != nil {
		return repository.Page{}, err
	}
	page, err := s.directory.Search(ctx, f)
	if err != nil {
		return repository.Page{}, err
	}
	for k := range page.Items {
		page.Items[k] = s.signal.Annotate(page.Items[k])
	}
	return page, nil
}

// GetTalent returns one profile.
func (s *Service) GetTalent(ctx context.Context, id string) (model.TalentProfile, error) {
	if err := s.ready(); err != nil {
		return model.TalentProfile{}, err
	}
	p, err := s.directory.Get(ctx, id)
	if err != nil {
		return model.TalentProfile{}, err
	}
	return s.signal.Annotate(p), nil
}

// ArchiveTalent soft-archives a profile and audits the action.
func (s *Service) ArchiveTalent(ctx context.Context, id, operator string) (model.TalentProfile, error) {
	if err := s.ready(); err != nil {
		return model.TalentProfile{}, err
	}
	p, err := s.directory.Archive(ctx, id)
	if err != nil {
		return model.TalentProfile{}, err
	}
	s.recordAudit(ctx, model.AuditEntry{Action: model.AuditArchive, Actor: operator, ProfileID: id})
	s.logger.Info(ctx, "talent archived", logger.String("profile_id", id), logger.String("operator", operator))
	return s.signal.Annotate(p), nil
}

// GetCandidate returns one dedupe candidate.
func (s *Service) GetCandidate(_ context.Context, id string) (model.DedupeCandidate, error) {
	if err := s.ready(); err != nil {
		return model.DedupeCandidate{}, err
	}
	return s.engine.Candidate(id)
}

// GetRecord returns one candidate record.
func (s *Service) GetRecord(ctx context.Context, id string) (model.CandidateRecord, error) {
	if err := s.ready(); err != nil {
		return model.CandidateRecord{}, err
	}
	return s.records.Get(ctx, id)
}

// RecordHistory returns every candidate created for a record, oldest first.
func (s *Service) RecordHistory(_ context.Context, recordID string) ([]model.DedupeCandidate, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.engine.History(recordID), nil
}

// ReopenRecord is the operator reversal of a decided record.
func (s *Service) ReopenRecord(ctx context.Context, recordID, operator, reason string) (model.DedupeCandidate, error) {
	if err := s.ready(); err != nil {
		return model.DedupeCandidate{}, err
	}
	c, err := s.engine.Reopen(ctx, recordID, operator, reason)
	if err != nil {
		return model.DedupeCandidate{}, err
	}
	s.recordAudit(ctx, model.AuditEntry{
		Action:      model.AuditReopen,
		CandidateID: c.ID,
		RecordID:    recordID,
		Actor:       operator,
		ProfileID:   c.ProposedProfileID,
		Notes:       reason,
	})
	return c, nil
}

// PendingItems lists pending inbox items.
func (s *Service) PendingItems(_ context.Context, f inbox.Filter) ([]model.InboxItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.inbox.Pending(f), nil
}

// GetInboxItem returns one inbox item.
func (s *Service) GetInboxItem(_ context.Context, id string) (model.InboxItem, error) {
	if err := s.ready(); err != nil {
		return model.InboxItem{}, err
	}
	return s.inbox.Get(id)
}

// Decide applies a reviewer decision.
func (s *Service) Decide(ctx context.Context, itemID string, d inbox.Decision) (model.InboxItem, error) {
	if err := s.ready(); err != nil {
		return model.InboxItem{}, err
	}
	return s.inbox.Decide(ctx, itemID, d)
}

// Assign sets the reviewer of a pending item.
func (s *Service) Assign(ctx context.Context, itemID, assignee string) (model.InboxItem, error) {
	if err := s.ready(); err != nil {
		return model.InboxItem{}, err
	}
	return s.inbox.Assign(ctx, itemID, assignee)
}

// Audit returns the most recent audit entries.
func (s *Service) Audit(_ context.Context, limit int) ([]model.AuditEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.inbox.Audit(limit), nil
}
