package model

import "time"

// Schedule is the cadence of one connector. The scheduler starts a run for
// every enabled schedule whose NextDueAt has passed.
type Schedule struct {
	ConnectorID string    `json:"connector"`
	Cadence     string    `json:"cadence_cron"`
	Enabled     bool      `json:"enabled"`
	LastRunAt   time.Time `json:"last_run_at,omitempty"`
	NextDueAt   time.Time `json:"next_due_at,omitempty"`
}

// Due reports whether the schedule should trigger at now.
func (s Schedule) Due(now time.Time) bool {
	return s.Enabled && !s.NextDueAt.After(now)
}

// Ingestion log kinds.
const (
	LogKindFetch  = "fetch"
	LogKindManual = "manual"
)

// IngestionLog records one fetch from a source: what was pulled, when, and
// how much of it was usable.
type IngestionLog struct {
	ID          string            `json:"id"`
	ConnectorID string            `json:"connector"`
	RunID       string            `json:"run_id,omitempty"`
	Kind        string            `json:"kind"`
	URL         string            `json:"url,omitempty"`
	FetchedAt   time.Time         `json:"fetched_at"`
	ContentHash string            `json:"content_hash,omitempty"`
	Records     int               `json:"records"`
	Rejected    int               `json:"rejected"`
	Error       string            `json:"error,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}
