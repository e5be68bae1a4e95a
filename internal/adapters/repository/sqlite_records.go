package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/okian/scout/internal/domain/model"
)

const recordColumns = "id, run_id, source_id, native_id, archived, archived_at, resolve_error, ingested_at, attributes"

// SQLiteRecordStore is a RecordStore sharing the directory database.
type SQLiteRecordStore struct {
	db   *sql.DB
	opts options
}

var _ RecordStore = (*SQLiteRecordStore)(nil)

// Records returns the record store backed by the directory database.
func (s *SQLiteDirectory) Records() *SQLiteRecordStore {
	return &SQLiteRecordStore{db: s.db, opts: s.opts}
}

// Put implements RecordStore.
func (r *SQLiteRecordStore) Put(ctx context.Context, rec model.CandidateRecord) (bool, error) {
	if rec.ID == "" {
		return false, model.NewKind("records.put", model.ErrConnector, "record without id from %s", rec.SourceID)
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = r.opts.now()
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return false, fmt.Errorf("encode attributes: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.SourceID, rec.NativeID, boolToInt(rec.Archived), optionalTime(rec.ArchivedAt),
		rec.ResolveError, formatTime(rec.IngestedAt), string(attrs),
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Get implements RecordStore.
func (r *SQLiteRecordStore) Get(ctx context.Context, id string) (model.CandidateRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CandidateRecord{}, model.NewKind("records.get", model.ErrNotFound, "record %s", id)
	}
	return rec, err
}

// Archive implements RecordStore.
func (r *SQLiteRecordStore) Archive(ctx context.Context, id string) (model.CandidateRecord, error) {
	if _, err := r.db.ExecContext(ctx, "UPDATE records SET archived = 1, archived_at = ? WHERE id = ? AND archived = 0",
		formatTime(r.opts.now()), id); err != nil {
		return model.CandidateRecord{}, fmt.Errorf("archive record: %w", err)
	}
	rec, err := r.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.CandidateRecord{}, model.NewKind("records.archive", model.ErrNotFound, "record %s", id)
	}
	return rec, err
}

// ByExecution implements RecordStore.
func (r *SQLiteRecordStore) ByExecution(ctx context.Context, runID, connectorID string) ([]model.CandidateRecord, error) {
	return r.query(ctx, "SELECT "+recordColumns+" FROM records WHERE run_id = ? AND source_id = ? ORDER BY ingested_at, native_id, id",
		runID, connectorID)
}

// MarkUnresolved implements RecordStore.
func (r *SQLiteRecordStore) MarkUnresolved(ctx context.Context, id, reason string) (model.CandidateRecord, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE records SET resolve_error = ? WHERE id = ?", reason, id)
	if err != nil {
		return model.CandidateRecord{}, fmt.Errorf("mark record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.CandidateRecord{}, model.NewKind("records.mark_unresolved", model.ErrNotFound, "record %s", id)
	}
	return r.Get(ctx, id)
}

// Unresolved implements RecordStore.
func (r *SQLiteRecordStore) Unresolved(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT source_id, COUNT(1) FROM records WHERE run_id = ? AND resolve_error <> '' GROUP BY source_id", runID)
	if err != nil {
		return nil, fmt.Errorf("count unresolved: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan unresolved: %w", err)
		}
		out[source] = n
	}
	return out, rows.Err()
}

// All implements RecordStore. Rows are read before the first yield, so the
// consumer may write to the database while iterating.
func (r *SQLiteRecordStore) All(ctx context.Context) iter.Seq2[model.CandidateRecord, error] {
	return func(yield func(model.CandidateRecord, error) bool) {
		recs, err := r.query(ctx, "SELECT "+recordColumns+" FROM records ORDER BY ingested_at, native_id, id")
		if err != nil {
			yield(model.CandidateRecord{}, err)
			return
		}
		for _, rec := range recs {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Count implements RecordStore.
func (r *SQLiteRecordStore) Count(ctx context.Context) int {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM records").Scan(&n); err != nil {
		return 0
	}
	return n
}

func (r *SQLiteRecordStore) query(ctx context.Context, query string, args ...any) ([]model.CandidateRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.CandidateRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (model.CandidateRecord, error) {
	var (
		rec                        model.CandidateRecord
		archived                   int
		archivedAt, ingested, attr string
	)
	if err := scanner.Scan(&rec.ID, &rec.RunID, &rec.SourceID, &rec.NativeID, &archived, &archivedAt,
		&rec.ResolveError, &ingested, &attr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CandidateRecord{}, err
		}
		return model.CandidateRecord{}, fmt.Errorf("scan record: %w", err)
	}
	if err := json.Unmarshal([]byte(attr), &rec.Attributes); err != nil {
		return model.CandidateRecord{}, fmt.Errorf("decode attributes: %w", err)
	}
	rec.Archived = archived != 0
	rec.ArchivedAt = parseTime(archivedAt)
	rec.IngestedAt = parseTime(ingested)
	return rec, nil
}

// optionalTime stores the zero time as an empty string.
func optionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}
