package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/scoring"
	"github.com/okian/scout/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump it when schema.sql changes.
const schemaVersion = 2

// ErrSchemaMismatch indicates the database schema version doesn't match.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLiteDirectory is a durable Directory. Profile writes use an optimistic
// version check: an UPDATE that matches no row at the expected version
// returns ErrVersionConflict. Wrap it with Retrying to absorb conflicts.
type SQLiteDirectory struct {
	db   *sql.DB
	lock *flock.Flock
	path string
	opts options
}

var _ Directory = (*SQLiteDirectory)(nil)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OpenSQLite opens or creates the directory database at path and takes an
// exclusive lock file next to it.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteDirectory, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire directory lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: transactions never interleave inside this process and
	// the version check guards everything else.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteDirectory{db: db, lock: lock, path: path, opts: applyOptions(opts)}
	if err := s.initSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	metrics.UpdateDirectoryProfiles(s.Count(ctx))
	return s, nil
}

// Close closes the database and releases the lock file.
func (s *SQLiteDirectory) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

func (s *SQLiteDirectory) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.tx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *SQLiteDirectory) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return withTx(ctx, s.db, fn)
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get implements Directory.
func (s *SQLiteDirectory) Get(ctx context.Context, id string) (model.TalentProfile, error) {
	var p model.TalentProfile
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = s.load(ctx, tx, id)
		return err
	})
	return p, err
}

// ProfileForRecord implements Directory.
func (s *SQLiteDirectory) ProfileForRecord(ctx context.Context, recordID string) (model.TalentProfile, error) {
	var p model.TalentProfile
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var profileID string
		err := tx.QueryRowContext(ctx, "SELECT profile_id FROM provenance WHERE record_id = ?", recordID).Scan(&profileID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewKind("directory.profile_for_record", model.ErrNotFound, "record %s", recordID)
		}
		if err != nil {
			return fmt.Errorf("lookup provenance: %w", err)
		}
		p, err = s.load(ctx, tx, profileID)
		return err
	})
	return p, err
}

// ProfileForSource implements Directory.
func (s *SQLiteDirectory) ProfileForSource(ctx context.Context, sourceID, nativeID string) (model.TalentProfile, error) {
	var p model.TalentProfile
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var profileID string
		err := tx.QueryRowContext(ctx, `SELECT pr.profile_id FROM provenance pr JOIN profiles p ON p.id = pr.profile_id
			WHERE pr.source_id = ? AND pr.native_id = ? AND pr.native_id <> '' AND p.archived = 0
			ORDER BY pr.linked_at DESC LIMIT 1`, sourceID, nativeID).Scan(&profileID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewKind("directory.profile_for_source", model.ErrNotFound, "item %s/%s", sourceID, nativeID)
		}
		if err != nil {
			return fmt.Errorf("lookup provenance: %w", err)
		}
		p, err = s.load(ctx, tx, profileID)
		return err
	})
	return p, err
}

// Create implements Directory.
func (s *SQLiteDirectory) Create(ctx context.Context, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error) {
	start := time.Now()
	defer func() { metrics.RecordDirectoryLatency("create", time.Since(start)) }()

	var out model.TalentProfile
	created := false
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, "SELECT profile_id FROM provenance WHERE record_id = ?", rec.ID).Scan(&owner)
		switch {
		case err == nil:
			existing, err := s.load(ctx, tx, owner)
			if err != nil {
				return err
			}
			if existing.OriginRecordID != rec.ID {
				return model.WrapKind("directory.create", model.ErrInvalidState, ErrRecordLinked)
			}
			out = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup provenance: %w", err)
		}

		p := model.NewProfile(s.opts.newID(), rec, link, s.opts.now())
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO profiles
			(id, version, origin_record_id, archived, attributes, affiliation_key, search_text, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
			p.ID, p.Version, p.OriginRecordID, string(attrs),
			scoring.Fold(p.Attributes.Affiliation), searchText(p.Attributes),
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		if err := insertLink(ctx, tx, p.ID, p.Provenance[0], 0); err != nil {
			return err
		}
		if err := insertKeys(ctx, tx, p.ID, rec.Attributes); err != nil {
			return err
		}
		out, created = p, true
		return nil
	})
	if err != nil {
		return model.TalentProfile{}, err
	}
	if created {
		metrics.RecordDirectoryCreate()
		metrics.UpdateDirectoryProfiles(s.Count(ctx))
	}
	return out, nil
}

// UpsertProvenance implements Directory.
func (s *SQLiteDirectory) UpsertProvenance(ctx context.Context, id string, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error) {
	start := time.Now()
	defer func() { metrics.RecordDirectoryLatency("upsert", time.Since(start)) }()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return model.TalentProfile{}, err
	}
	if cur.HasRecord(rec.ID) {
		return cur, nil
	}
	if cur.Archived {
		return model.TalentProfile{}, model.WrapKind("directory.upsert", model.ErrInvalidState, ErrArchived)
	}
	next := cur.Clone()
	prev, refresh := next.LinkFor(link)
	if !next.Link(rec, link, s.opts.now()) {
		return cur, nil
	}
	stored, position := linkOf(next, rec.ID)

	err = s.tx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, "SELECT profile_id FROM provenance WHERE record_id = ?", rec.ID).Scan(&owner)
		switch {
		case err == nil && owner == id:
			// Linked by a concurrent writer since our read.
			return ErrVersionConflict
		case err == nil:
			return model.WrapKind("directory.upsert", model.ErrInvalidState, ErrRecordLinked)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup provenance: %w", err)
		}
		if err := s.compareAndSwap(ctx, tx, cur.Version, next); err != nil {
			return err
		}
		if refresh {
			if _, err := tx.ExecContext(ctx, "DELETE FROM provenance WHERE record_id = ? AND profile_id = ?", prev.RecordID, id); err != nil {
				return fmt.Errorf("replace provenance: %w", err)
			}
		}
		if err := insertLink(ctx, tx, id, stored, position); err != nil {
			return err
		}
		if err := insertKeys(ctx, tx, id, rec.Attributes); err != nil {
			return err
		}
		return insertKeys(ctx, tx, id, next.Attributes)
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			metrics.RecordDirectoryConflict()
		}
		return model.TalentProfile{}, err
	}
	metrics.RecordDirectoryMerge()
	return next, nil
}

// DetachProvenance implements Directory.
func (s *SQLiteDirectory) DetachProvenance(ctx context.Context, id, recordID string) (model.TalentProfile, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return model.TalentProfile{}, err
	}
	next := cur.Clone()
	if !next.Unlink(recordID, s.opts.now()) {
		return cur, nil
	}
	if len(next.Provenance) == 0 {
		next.Archived = true
	}
	err = s.tx(ctx, func(tx *sql.Tx) error {
		if err := s.compareAndSwap(ctx, tx, cur.Version, next); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM provenance WHERE record_id = ? AND profile_id = ?", recordID, id); err != nil {
			return fmt.Errorf("delete provenance: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.TalentProfile{}, err
	}
	metrics.UpdateDirectoryProfiles(s.Count(ctx))
	return next, nil
}

// Archive implements Directory.
func (s *SQLiteDirectory) Archive(ctx context.Context, id string) (model.TalentProfile, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return model.TalentProfile{}, err
	}
	if cur.Archived {
		return cur, nil
	}
	next := cur.Clone()
	next.Archived = true
	next.Version++
	next.UpdatedAt = s.opts.now()
	if err := s.tx(ctx, func(tx *sql.Tx) error {
		return s.compareAndSwap(ctx, tx, cur.Version, next)
	}); err != nil {
		return model.TalentProfile{}, err
	}
	metrics.UpdateDirectoryProfiles(s.Count(ctx))
	return next, nil
}

// compareAndSwap writes next only if the stored version still equals expect.
func (s *SQLiteDirectory) compareAndSwap(ctx context.Context, tx *sql.Tx, expect int64, next model.TalentProfile) error {
	attrs, err := json.Marshal(next.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE profiles
		SET version = ?, archived = ?, attributes = ?, affiliation_key = ?, search_text = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		next.Version, boolToInt(next.Archived), string(attrs),
		scoring.Fold(next.Attributes.Affiliation), searchText(next.Attributes),
		formatTime(next.UpdatedAt), next.ID, expect,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Block implements Directory.
func (s *SQLiteDirectory) Block(ctx context.Context, keys []string, limit int) ([]model.TalentProfile, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, limit)
	query := `SELECT DISTINCT p.id FROM block_keys b JOIN profiles p ON p.id = b.profile_id
		WHERE b.key IN (` + placeholders(len(keys)) + `) AND p.archived = 0
		ORDER BY p.id LIMIT ?`

	var out []model.TalentProfile
	err := s.tx(ctx, func(tx *sql.Tx) error {
		ids, err := queryStrings(ctx, tx, query, args...)
		if err != nil {
			return err
		}
		for _, id := range ids {
			p, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Search implements Directory.
func (s *SQLiteDirectory) Search(ctx context.Context, filter Filter) (Page, error) {
	filter = normalizeFilter(filter)
	where := `WHERE (archived = 0 OR ?) AND (? = '' OR affiliation_key = ?) AND (? = '' OR instr(search_text, ?) > 0)`
	args := []any{boolToInt(filter.IncludeArchived), filter.Affiliation, filter.Affiliation, filter.Query, filter.Query}

	page := Page{Page: filter.Page, PageSize: filter.PageSize}
	err := s.tx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM profiles "+where, args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		ids, err := queryStrings(ctx, tx, "SELECT id FROM profiles "+where+" ORDER BY id LIMIT ? OFFSET ?",
			append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)...)
		if err != nil {
			return err
		}
		for _, id := range ids {
			p, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			page.Items = append(page.Items, p)
		}
		return nil
	})
	return page, err
}

// Count implements Directory.
func (s *SQLiteDirectory) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM profiles WHERE archived = 0").Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *SQLiteDirectory) load(ctx context.Context, q querier, id string) (model.TalentProfile, error) {
	var (
		p                  model.TalentProfile
		archived           int
		attrs, created, up string
	)
	err := q.QueryRowContext(ctx, `SELECT id, version, origin_record_id, archived, attributes, created_at, updated_at
		FROM profiles WHERE id = ?`, id).Scan(&p.ID, &p.Version, &p.OriginRecordID, &archived, &attrs, &created, &up)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TalentProfile{}, notFound("directory.get", id)
	}
	if err != nil {
		return model.TalentProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
		return model.TalentProfile{}, fmt.Errorf("decode attributes: %w", err)
	}
	p.Archived = archived != 0
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(up)

	rows, err := q.QueryContext(ctx, `SELECT record_id, source_id, native_id, candidate_id, content_hash, linked_at
		FROM provenance WHERE profile_id = ? ORDER BY position, record_id`, id)
	if err != nil {
		return model.TalentProfile{}, fmt.Errorf("load provenance: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var l model.SourceLink
		var linked string
		if err := rows.Scan(&l.RecordID, &l.SourceID, &l.NativeID, &l.CandidateID, &l.ContentHash, &linked); err != nil {
			return model.TalentProfile{}, fmt.Errorf("scan provenance: %w", err)
		}
		l.LinkedAt = parseTime(linked)
		p.Provenance = append(p.Provenance, l)
	}
	if err := rows.Err(); err != nil {
		return model.TalentProfile{}, fmt.Errorf("iterate provenance: %w", err)
	}
	return p, nil
}

func insertLink(ctx context.Context, tx *sql.Tx, profileID string, l model.SourceLink, position int) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO provenance
		(record_id, profile_id, source_id, native_id, candidate_id, content_hash, position, linked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RecordID, profileID, l.SourceID, l.NativeID, l.CandidateID, l.ContentHash, position, formatTime(l.LinkedAt))
	if err != nil {
		return fmt.Errorf("insert provenance: %w", err)
	}
	return nil
}

// linkOf finds the provenance entry of recordID and its position.
func linkOf(p model.TalentProfile, recordID string) (model.SourceLink, int) {
	for i, l := range p.Provenance {
		if l.RecordID == recordID {
			return l, i
		}
	}
	return model.SourceLink{}, len(p.Provenance)
}

func insertKeys(ctx context.Context, tx *sql.Tx, profileID string, attrs model.Attributes) error {
	for _, k := range scoring.BlockingKeys(attrs) {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO block_keys (key, profile_id) VALUES (?, ?)", k, profileID); err != nil {
			return fmt.Errorf("insert block key: %w", err)
		}
	}
	return nil
}

func queryStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
