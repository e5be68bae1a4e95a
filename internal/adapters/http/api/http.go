// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/scout/internal/adapters/mq/queue"
	service "github.com/okian/scout/internal/app"
	"github.com/okian/scout/internal/domain/inbox"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
	"github.com/okian/scout/pkg/logger"
)

// DefaultMaxLimit caps list sizes when the server is built without one.
const DefaultMaxLimit = 500

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RunDependencies
	TalentDependencies
	InboxDependencies
	SettingsDependencies
	ScheduleDependencies
	LogDependencies
}

// Server wires HTTP routes for the operator API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	runsHandler     *RunsHandler
	talentsHandler  *TalentsHandler
	inboxHandler    *InboxHandler
	settingsHandler *SettingsHandler
	schedules       *SchedulesHandler
	logs            *LogsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		runsHandler:     NewRunsHandler(deps, maxLimit),
		talentsHandler:  NewTalentsHandler(deps, maxLimit),
		inboxHandler:    NewInboxHandler(deps, maxLimit),
		settingsHandler: NewSettingsHandler(deps),
		schedules:       NewSchedulesHandler(deps, maxLimit),
		logs:            NewLogsHandler(deps, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /metrics", "metrics", s.healthHandler.HandleMetrics)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /runs", "runs", s.runsHandler.HandleStartRun)
	route("GET /runs", "runs", s.runsHandler.HandleListRuns)
	route("GET /runs/{id}", "run", s.runsHandler.HandleGetRun)
	route("POST /runs/{id}/connectors/{connector}/result", "run_result", s.runsHandler.HandleReportResult)

	route("GET /talents", "talents", s.talentsHandler.HandleSearch)
	route("GET /talents/{id}", "talent", s.talentsHandler.HandleGet)
	route("POST /talents/{id}/archive", "talent_archive", s.talentsHandler.HandleArchive)
	route("GET /candidates/{id}", "candidate", s.talentsHandler.HandleGetCandidate)
	route("GET /records/{id}/history", "record_history", s.talentsHandler.HandleRecordHistory)
	route("POST /records/{id}/reopen", "record_reopen", s.talentsHandler.HandleReopen)

	route("GET /inbox", "inbox", s.inboxHandler.HandlePending)
	route("GET /inbox/{id}", "inbox_item", s.inboxHandler.HandleGet)
	route("POST /inbox/{id}/decision", "inbox_decision", s.inboxHandler.HandleDecide)
	route("POST /inbox/{id}/assign", "inbox_assign", s.inboxHandler.HandleAssign)
	route("GET /audit", "audit", s.inboxHandler.HandleAudit)

	route("GET /settings", "settings", s.settingsHandler.HandleGet)
	route("PUT /settings", "settings", s.settingsHandler.HandleUpdate)

	route("GET /schedules", "schedules", s.schedules.HandleList)
	route("POST /schedules", "schedules", s.schedules.HandleCreate)
	route("GET /schedules/{connector}", "schedule", s.schedules.HandleGet)
	route("PUT /schedules/{connector}", "schedule", s.schedules.HandleUpdate)
	route("DELETE /schedules/{connector}", "schedule", s.schedules.HandleDelete)

	route("GET /logs", "logs", s.logs.HandleList)
	route("POST /logs", "logs", s.logs.HandleCreate)
	route("GET /logs/{id}", "log", s.logs.HandleGet)
	route("DELETE /logs/{id}", "log", s.logs.HandleDelete)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Named("api").Warn(context.Background(), "response encoding failed",
			logger.Int("status", status), logger.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.Error{Code: code, Message: msg})
}

// writeFailure translates a domain error into its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrConfiguration):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, inbox.ErrInvalidDecision):
		writeError(w, http.StatusUnprocessableEntity, "invalid_decision", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func decodeBody(op string, r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// queryInt parses an optional non-negative integer query parameter that
// must not exceed max.
func queryInt(op string, r *http.Request, name string, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, model.NewKind(op, ErrBadRequest, "invalid %s %q", name, raw)
	}
	if max > 0 && n > max {
		return 0, model.NewKind(op, ErrLimitExceeded, "%s %d above %d", name, n, max)
	}
	return n, nil
}
