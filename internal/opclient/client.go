// Package opclient is the HTTP client for the scout operator API.
package opclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
)

// DefaultTimeout bounds every request unless WithHTTPClient overrides it.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("scout api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("scout api: %s: %s", e.Code, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// Client wraps http.Client with the API routes.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks the service liveness endpoint.
func (c *Client) Health(ctx context.Context) (types.Health, error) {
	var out types.Health
	return out, c.do(ctx, http.MethodGet, "/healthz", nil, nil, &out)
}

// Stats returns the service statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, http.MethodGet, "/stats", nil, nil, &out)
}

// StartRun starts a run over connectors.
func (c *Client) StartRun(ctx context.Context, connectors []string) (types.Run, error) {
	var out types.Run
	return out, c.do(ctx, http.MethodPost, "/runs", nil, types.StartRunRequest{Connectors: connectors}, &out)
}

// ListRuns lists runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	var out []types.Run
	return out, c.do(ctx, http.MethodGet, "/runs", limitQuery(limit), nil, &out)
}

// GetRun returns one run.
func (c *Client) GetRun(ctx context.Context, id string) (types.Run, error) {
	var out types.Run
	return out, c.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(id), nil, nil, &out)
}

// SearchQuery narrows SearchTalents.
type SearchQuery struct {
	Query           string
	Affiliation     string
	IncludeArchived bool
	Page            int
	PageSize        int
}

// SearchTalents pages through talent profiles.
func (c *Client) SearchTalents(ctx context.Context, q SearchQuery) (types.TalentPage, error) {
	v := url.Values{}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Affiliation != "" {
		v.Set("affiliation", q.Affiliation)
	}
	if q.IncludeArchived {
		v.Set("include_archived", "true")
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	var out types.TalentPage
	return out, c.do(ctx, http.MethodGet, "/talents", v, nil, &out)
}

// GetTalent returns one talent profile.
func (c *Client) GetTalent(ctx context.Context, id string) (model.TalentProfile, error) {
	var out model.TalentProfile
	return out, c.do(ctx, http.MethodGet, "/talents/"+url.PathEscape(id), nil, nil, &out)
}

// ArchiveTalent soft-archives a talent profile.
func (c *Client) ArchiveTalent(ctx context.Context, id, operator string) (model.TalentProfile, error) {
	var out model.TalentProfile
	return out, c.do(ctx, http.MethodPost, "/talents/"+url.PathEscape(id)+"/archive", nil,
		types.OperatorRequest{Operator: operator}, &out)
}

// Reopen reopens the decision on a record.
func (c *Client) Reopen(ctx context.Context, recordID, operator, reason string) (model.DedupeCandidate, error) {
	var out model.DedupeCandidate
	return out, c.do(ctx, http.MethodPost, "/records/"+url.PathEscape(recordID)+"/reopen", nil,
		types.OperatorRequest{Operator: operator, Reason: reason}, &out)
}

// Inbox lists pending review items.
func (c *Client) Inbox(ctx context.Context, assignee string, limit int) ([]model.InboxItem, error) {
	v := limitQuery(limit)
	if assignee != "" {
		v.Set("assignee", assignee)
	}
	var out []model.InboxItem
	return out, c.do(ctx, http.MethodGet, "/inbox", v, nil, &out)
}

// Decide records a reviewer decision on an inbox item.
func (c *Client) Decide(ctx context.Context, itemID string, req types.DecisionRequest) (model.InboxItem, error) {
	var out model.InboxItem
	return out, c.do(ctx, http.MethodPost, "/inbox/"+url.PathEscape(itemID)+"/decision", nil, req, &out)
}

// Assign assigns an inbox item to a reviewer.
func (c *Client) Assign(ctx context.Context, itemID, assignee string) (model.InboxItem, error) {
	var out model.InboxItem
	return out, c.do(ctx, http.MethodPost, "/inbox/"+url.PathEscape(itemID)+"/assign", nil,
		types.AssignRequest{Assignee: assignee}, &out)
}

// Audit returns audit entries, newest first.
func (c *Client) Audit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	return out, c.do(ctx, http.MethodGet, "/audit", limitQuery(limit), nil, &out)
}

// Settings returns the runtime settings.
func (c *Client) Settings(ctx context.Context) (types.Settings, error) {
	var out types.Settings
	return out, c.do(ctx, http.MethodGet, "/settings", nil, nil, &out)
}

// UpdateSettings replaces the runtime settings.
func (c *Client) UpdateSettings(ctx context.Context, s types.Settings) (types.Settings, error) {
	var out types.Settings
	return out, c.do(ctx, http.MethodPut, "/settings", nil, s, &out)
}

// ScheduleQuery narrows ListSchedules. A nil Enabled lists every schedule.
type ScheduleQuery struct {
	Enabled  *bool
	Page     int
	PageSize int
}

// ListSchedules pages through connector schedules.
func (c *Client) ListSchedules(ctx context.Context, q ScheduleQuery) (types.SchedulePage, error) {
	v := pageQuery(q.Page, q.PageSize)
	if q.Enabled != nil {
		v.Set("enabled", strconv.FormatBool(*q.Enabled))
	}
	var out types.SchedulePage
	return out, c.do(ctx, http.MethodGet, "/schedules", v, nil, &out)
}

// GetSchedule returns the schedule of one connector.
func (c *Client) GetSchedule(ctx context.Context, connector string) (model.Schedule, error) {
	var out model.Schedule
	return out, c.do(ctx, http.MethodGet, "/schedules/"+url.PathEscape(connector), nil, nil, &out)
}

// CreateSchedule adds a connector schedule.
func (c *Client) CreateSchedule(ctx context.Context, req types.ScheduleRequest) (model.Schedule, error) {
	var out model.Schedule
	return out, c.do(ctx, http.MethodPost, "/schedules", nil, req, &out)
}

// UpdateSchedule patches a connector schedule.
func (c *Client) UpdateSchedule(ctx context.Context, connector string, patch types.SchedulePatch) (model.Schedule, error) {
	var out model.Schedule
	return out, c.do(ctx, http.MethodPut, "/schedules/"+url.PathEscape(connector), nil, patch, &out)
}

// DeleteSchedule removes a connector schedule.
func (c *Client) DeleteSchedule(ctx context.Context, connector string) error {
	return c.do(ctx, http.MethodDelete, "/schedules/"+url.PathEscape(connector), nil, nil, nil)
}

// LogQuery narrows ListLogs.
type LogQuery struct {
	Connector string
	Kind      string
	Page      int
	PageSize  int
}

// ListLogs pages through ingestion logs, newest first.
func (c *Client) ListLogs(ctx context.Context, q LogQuery) (types.LogPage, error) {
	v := pageQuery(q.Page, q.PageSize)
	if q.Connector != "" {
		v.Set("connector", q.Connector)
	}
	if q.Kind != "" {
		v.Set("kind", q.Kind)
	}
	var out types.LogPage
	return out, c.do(ctx, http.MethodGet, "/logs", v, nil, &out)
}

// GetLog returns one ingestion log.
func (c *Client) GetLog(ctx context.Context, id string) (model.IngestionLog, error) {
	var out model.IngestionLog
	return out, c.do(ctx, http.MethodGet, "/logs/"+url.PathEscape(id), nil, nil, &out)
}

// AddLog records an ingestion log.
func (c *Client) AddLog(ctx context.Context, l model.IngestionLog) (model.IngestionLog, error) {
	var out model.IngestionLog
	return out, c.do(ctx, http.MethodPost, "/logs", nil, l, &out)
}

// DeleteLog removes an ingestion log.
func (c *Client) DeleteLog(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/logs/"+url.PathEscape(id), nil, nil, nil)
}

func pageQuery(page, size int) url.Values {
	v := url.Values{}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		v.Set("page_size", strconv.Itoa(size))
	}
	return v
}

func limitQuery(limit int) url.Values {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return v
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var e types.Error
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
