package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/scout/internal/domain/model"
)

// SQLiteState persists the workflow state that lives next to the
// directory: dedupe candidates, review inbox items, the audit trail, runs
// and settings. Rows carry a JSON payload plus the columns queries need.
type SQLiteState struct {
	db *sql.DB
}

// State returns the workflow state store backed by the directory database.
func (s *SQLiteDirectory) State() *SQLiteState {
	return &SQLiteState{db: s.db}
}

// SaveCandidate inserts or replaces a candidate.
func (s *SQLiteState) SaveCandidate(ctx context.Context, c model.DedupeCandidate) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode candidate: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO candidates (id, record_id, generation, state, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, payload = excluded.payload`,
		c.ID, c.RecordID, c.Generation, string(c.State), formatTime(c.CreatedAt), string(payload))
	if err != nil {
		return fmt.Errorf("save candidate %s: %w", c.ID, err)
	}
	return nil
}

// LoadCandidates returns every candidate ordered by record and generation.
func (s *SQLiteState) LoadCandidates(ctx context.Context) ([]model.DedupeCandidate, error) {
	return loadPayloads[model.DedupeCandidate](ctx, s.db, "SELECT payload FROM candidates ORDER BY record_id, generation")
}

// SaveItem inserts or replaces an inbox item. A non-nil entry is appended
// to the audit trail in the same transaction.
func (s *SQLiteState) SaveItem(ctx context.Context, item model.InboxItem, entry *model.AuditEntry) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode inbox item: %w", err)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO inbox_items (id, candidate_id, state, created_at, payload)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET state = excluded.state, payload = excluded.payload`,
			item.ID, item.CandidateID, string(item.State), formatTime(item.CreatedAt), string(payload)); err != nil {
			return fmt.Errorf("save inbox item %s: %w", item.ID, err)
		}
		if entry == nil {
			return nil
		}
		return insertAudit(ctx, tx, *entry)
	})
}

// AppendAudit appends one audit entry.
func (s *SQLiteState) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	return insertAudit(ctx, s.db, entry)
}

func insertAudit(ctx context.Context, q querier, entry model.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if _, err := q.ExecContext(ctx, "INSERT INTO audit (seq, action, at, payload) VALUES (?, ?, ?, ?)",
		entry.Seq, entry.Action, formatTime(entry.At), string(payload)); err != nil {
		return fmt.Errorf("append audit %d: %w", entry.Seq, err)
	}
	return nil
}

// LoadItems returns every inbox item in creation order.
func (s *SQLiteState) LoadItems(ctx context.Context) ([]model.InboxItem, error) {
	return loadPayloads[model.InboxItem](ctx, s.db, "SELECT payload FROM inbox_items ORDER BY created_at, id")
}

// LoadAudit returns the audit trail in sequence order.
func (s *SQLiteState) LoadAudit(ctx context.Context) ([]model.AuditEntry, error) {
	return loadPayloads[model.AuditEntry](ctx, s.db, "SELECT payload FROM audit ORDER BY seq")
}

// SaveRun inserts or replaces a run with its executions.
func (s *SQLiteState) SaveRun(ctx context.Context, run model.Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (id, state, created_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, payload = excluded.payload`,
		run.ID, string(run.State), formatTime(run.CreatedAt), string(payload))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// LoadRuns returns every run in creation order.
func (s *SQLiteState) LoadRuns(ctx context.Context) ([]model.Run, error) {
	return loadPayloads[model.Run](ctx, s.db, "SELECT payload FROM runs ORDER BY created_at, id")
}

// SaveSettings replaces the stored settings.
func (s *SQLiteState) SaveSettings(ctx context.Context, settings model.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO settings (id, payload) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, string(payload)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// LoadSettings returns the stored settings. ok is false when none were
// saved yet.
func (s *SQLiteState) LoadSettings(ctx context.Context) (settings model.Settings, ok bool, err error) {
	var payload string
	err = s.db.QueryRowContext(ctx, "SELECT payload FROM settings WHERE id = 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, false, nil
	}
	if err != nil {
		return model.Settings{}, false, fmt.Errorf("load settings: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &settings); err != nil {
		return model.Settings{}, false, fmt.Errorf("decode settings: %w", err)
	}
	return settings, true, nil
}

func loadPayloads[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveSchedule inserts or replaces a connector schedule.
func (s *SQLiteState) SaveSchedule(ctx context.Context, sched model.Schedule) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO schedules (connector_id, cadence, enabled, last_run_at, next_due_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(connector_id) DO UPDATE SET cadence = excluded.cadence, enabled = excluded.enabled,
			last_run_at = excluded.last_run_at, next_due_at = excluded.next_due_at`,
		sched.ConnectorID, sched.Cadence, boolToInt(sched.Enabled), optionalTime(sched.LastRunAt), optionalTime(sched.NextDueAt))
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", sched.ConnectorID, err)
	}
	return nil
}

// DeleteSchedule removes a connector schedule.
func (s *SQLiteState) DeleteSchedule(ctx context.Context, connectorID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE connector_id = ?", connectorID); err != nil {
		return fmt.Errorf("delete schedule %s: %w", connectorID, err)
	}
	return nil
}

// LoadSchedules returns every schedule ordered by connector.
func (s *SQLiteState) LoadSchedules(ctx context.Context) ([]model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT connector_id, cadence, enabled, last_run_at, next_due_at FROM schedules ORDER BY connector_id")
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Schedule
	for rows.Next() {
		var (
			sched         model.Schedule
			enabled       int
			lastRun, next string
		)
		if err := rows.Scan(&sched.ConnectorID, &sched.Cadence, &enabled, &lastRun, &next); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		sched.Enabled = enabled != 0
		sched.LastRunAt = parseTime(lastRun)
		sched.NextDueAt = parseTime(next)
		out = append(out, sched)
	}
	return out, rows.Err()
}
