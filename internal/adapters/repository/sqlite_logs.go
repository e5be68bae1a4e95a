package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/scout/internal/domain/model"
)

// SQLiteLogStore is a LogStore sharing the directory database.
type SQLiteLogStore struct {
	db   *sql.DB
	opts options
}

var _ LogStore = (*SQLiteLogStore)(nil)

// Logs returns the ingestion log store backed by the directory database.
func (s *SQLiteDirectory) Logs() *SQLiteLogStore {
	return &SQLiteLogStore{db: s.db, opts: s.opts}
}

// Add implements LogStore.
func (s *SQLiteLogStore) Add(ctx context.Context, log model.IngestionLog) (model.IngestionLog, error) {
	log, err := prepareLog(s.opts, log)
	if err != nil {
		return model.IngestionLog{}, err
	}
	payload, err := json.Marshal(log)
	if err != nil {
		return model.IngestionLog{}, fmt.Errorf("encode log: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO ingestion_logs (id, connector_id, run_id, kind, fetched_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.ConnectorID, log.RunID, log.Kind, formatTime(log.FetchedAt), string(payload))
	if err != nil {
		return model.IngestionLog{}, fmt.Errorf("insert log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.IngestionLog{}, model.NewKind("logs.add", model.ErrConflict, "log %s exists", log.ID)
	}
	return log, nil
}

// Get implements LogStore.
func (s *SQLiteLogStore) Get(ctx context.Context, id string) (model.IngestionLog, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM ingestion_logs WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IngestionLog{}, model.NewKind("logs.get", model.ErrNotFound, "log %s", id)
	}
	if err != nil {
		return model.IngestionLog{}, fmt.Errorf("load log: %w", err)
	}
	var log model.IngestionLog
	if err := json.Unmarshal([]byte(payload), &log); err != nil {
		return model.IngestionLog{}, fmt.Errorf("decode log: %w", err)
	}
	return log, nil
}

// List implements LogStore.
func (s *SQLiteLogStore) List(ctx context.Context, filter LogFilter) (LogPage, error) {
	filter = filter.normalize()
	var (
		where []string
		args  []any
	)
	if filter.ConnectorID != "" {
		where = append(where, "connector_id = ?")
		args = append(args, filter.ConnectorID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}
	page := LogPage{Page: filter.Page, PageSize: filter.PageSize}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM ingestion_logs"+cond, args...).Scan(&page.Total); err != nil {
		return LogPage{}, fmt.Errorf("count logs: %w", err)
	}
	items, err := loadPayloads[model.IngestionLog](ctx, s.db,
		"SELECT payload FROM ingestion_logs"+cond+" ORDER BY fetched_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)...)
	if err != nil {
		return LogPage{}, err
	}
	page.Items = items
	return page, nil
}

// Delete implements LogStore.
func (s *SQLiteLogStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ingestion_logs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NewKind("logs.delete", model.ErrNotFound, "log %s", id)
	}
	return nil
}
