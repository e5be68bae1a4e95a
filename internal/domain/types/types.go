// Package types contains the wire shapes shared by the HTTP API and its
// client.
package types

import (
	"time"

	"github.com/okian/scout/internal/domain/model"
)

// Execution is the JSON form of one connector execution.
type Execution struct {
	ConnectorID string     `json:"connector_id"`
	State       string     `json:"state"`
	Records     int        `json:"records"`
	Rejected    int        `json:"rejected"`
	Unresolved  int        `json:"unresolved"`
	Error       string     `json:"error,omitempty"`
	TimedOut    bool       `json:"timed_out"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Deadline    time.Time  `json:"deadline"`
}

// Run is the JSON form of a run.
type Run struct {
	ID         string      `json:"id"`
	State      string      `json:"state"`
	Connectors []string    `json:"connectors"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Executions []Execution `json:"executions"`
}

// FromRun converts a domain run.
func FromRun(r model.Run) Run {
	out := Run{
		ID:         r.ID,
		State:      string(r.State),
		Connectors: append([]string(nil), r.Connectors...),
		CreatedAt:  r.CreatedAt,
		FinishedAt: optional(r.FinishedAt),
		Executions: make([]Execution, 0, len(r.Executions)),
	}
	for _, e := range r.Executions {
		out.Executions = append(out.Executions, Execution{
			ConnectorID: e.ConnectorID,
			State:       string(e.State),
			Records:     e.Records,
			Rejected:    e.Rejected,
			Unresolved:  e.Unresolved,
			Error:       e.Error,
			TimedOut:    e.TimedOut,
			QueuedAt:    e.QueuedAt,
			StartedAt:   optional(e.StartedAt),
			FinishedAt:  optional(e.FinishedAt),
			Deadline:    e.Deadline,
		})
	}
	return out
}

// FromRuns converts a list of domain runs.
func FromRuns(runs []model.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, FromRun(r))
	}
	return out
}

func optional(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	Connectors []string `json:"connectors"`
}

// ReportRequest is the body of an external connector result report.
type ReportRequest struct {
	Succeeded bool   `json:"succeeded"`
	Records   int    `json:"records"`
	Rejected  int    `json:"rejected"`
	Error     string `json:"error,omitempty"`
	TimedOut  bool   `json:"timed_out"`
}

// Outcome converts the report to a domain outcome.
func (r ReportRequest) Outcome() model.ExecutionOutcome {
	if r.Succeeded {
		return model.Succeeded(r.Records, r.Rejected)
	}
	msg := r.Error
	if msg == "" {
		msg = "reported failure"
	}
	return model.ExecutionOutcome{Records: r.Records, Rejected: r.Rejected, Error: msg, TimedOut: r.TimedOut}
}

// TalentPage is one page of a talent search.
type TalentPage struct {
	Items    []model.TalentProfile `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// DecisionRequest is the body of POST /inbox/{id}/decision.
type DecisionRequest struct {
	Outcome   string `json:"outcome"`
	Reviewer  string `json:"reviewer"`
	ProfileID string `json:"profile_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// AssignRequest is the body of POST /inbox/{id}/assign.
type AssignRequest struct {
	Assignee string `json:"assignee"`
}

// OperatorRequest carries the acting operator for reopen and archive.
type OperatorRequest struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason,omitempty"`
}

// Settings is the flat JSON form of runtime settings.
type Settings struct {
	AutoMergeThreshold float64         `json:"auto_merge_threshold"`
	NoMatchThreshold   float64         `json:"no_match_threshold"`
	Connectors         map[string]bool `json:"connectors"`
}

// FromSettings converts domain settings.
func FromSettings(s model.Settings) Settings {
	return Settings{
		AutoMergeThreshold: s.Thresholds.AutoMerge,
		NoMatchThreshold:   s.Thresholds.NoMatch,
		Connectors:         s.Clone().Connectors,
	}
}

// Model converts back to domain settings.
func (s Settings) Model() model.Settings {
	return model.Settings{
		Thresholds: model.Thresholds{AutoMerge: s.AutoMergeThreshold, NoMatch: s.NoMatchThreshold},
		Connectors: s.Connectors,
	}
}

// SchedulePage is one page of connector schedules.
type SchedulePage struct {
	Items    []model.Schedule `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ScheduleRequest is the body of POST /schedules. Enabled defaults to true.
type ScheduleRequest struct {
	Connector string `json:"connector"`
	Cadence   string `json:"cadence_cron"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// Model converts the request to a schedule.
func (r ScheduleRequest) Model() model.Schedule {
	enabled := r.Enabled == nil || *r.Enabled
	return model.Schedule{ConnectorID: r.Connector, Cadence: r.Cadence, Enabled: enabled}
}

// SchedulePatch is the body of PUT /schedules/{connector}. Absent fields
// are left unchanged.
type SchedulePatch struct {
	Cadence   *string    `json:"cadence_cron,omitempty"`
	Enabled   *bool      `json:"enabled,omitempty"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
}

// LogPage is one page of ingestion logs.
type LogPage struct {
	Items    []model.IngestionLog `json:"items"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// Health is the body of GET /healthz.
type Health struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
