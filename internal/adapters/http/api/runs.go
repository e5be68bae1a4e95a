// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
)

// RunDependencies defines the run operations the API exposes.
type RunDependencies interface {
	StartRun(ctx context.Context, connectorIDs []string) (model.Run, error)
	GetRun(ctx context.Context, id string) (model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	ReportConnectorResult(ctx context.Context, runID, connectorID string, outcome model.ExecutionOutcome) (model.Run, error)
}

// RunsHandler handles run requests.
type RunsHandler struct {
	deps     RunDependencies
	maxLimit int
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunDependencies, maxLimit int) *RunsHandler {
	return &RunsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleStartRun handles POST /runs.
func (h *RunsHandler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_run"
	var req types.StartRunRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	run, err := h.deps.StartRun(r.Context(), req.Connectors)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.FromRun(run))
}

// HandleListRuns handles GET /runs?limit=N.
func (h *RunsHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt("api.list_runs", r, "limit", h.maxLimit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	runs, err := h.deps.ListRuns(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromRuns(runs))
}

// HandleGetRun handles GET /runs/{id}.
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromRun(run))
}

// HandleReportResult handles POST /runs/{id}/connectors/{connector}/result.
// A report for an already finished execution is acknowledged unchanged.
func (h *RunsHandler) HandleReportResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.report_result"
	var req types.ReportRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	run, err := h.deps.ReportConnectorResult(r.Context(), r.PathValue("id"), r.PathValue("connector"), req.Outcome())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromRun(run))
}
