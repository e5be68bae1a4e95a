package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schedule"
	"github.com/okian/scout/internal/domain/types"
)

// ScheduleDependencies defines connector schedule management.
type ScheduleDependencies interface {
	ListSchedules(ctx context.Context) ([]model.Schedule, error)
	GetSchedule(ctx context.Context, connectorID string) (model.Schedule, error)
	CreateSchedule(ctx context.Context, s model.Schedule) (model.Schedule, error)
	UpdateSchedule(ctx context.Context, connectorID string, patch schedule.Patch) (model.Schedule, error)
	DeleteSchedule(ctx context.Context, connectorID string) error
}

// SchedulesHandler handles connector schedule requests.
type SchedulesHandler struct {
	deps     ScheduleDependencies
	maxLimit int
}

// NewSchedulesHandler creates a new schedules handler.
func NewSchedulesHandler(deps ScheduleDependencies, maxLimit int) *SchedulesHandler {
	return &SchedulesHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /schedules?enabled=&page=&page_size=.
func (h *SchedulesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_schedules"
	var enabled *bool
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeFailure(w, model.NewKind(op, ErrBadRequest, "invalid enabled %q", raw))
			return
		}
		enabled = &v
	}
	page, err := queryInt(op, r, "page", 0)
	if err != nil {
		writeFailure(w, err)
		return
	}
	size, err := queryInt(op, r, "page_size", h.maxLimit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	all, err := h.deps.ListSchedules(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}

	matched := make([]model.Schedule, 0, len(all))
	for _, s := range all {
		if enabled == nil || s.Enabled == *enabled {
			matched = append(matched, s)
		}
	}
	if page < 1 {
		page = 1
	}
	if size == 0 {
		size = h.maxLimit
	}
	out := types.SchedulePage{Items: []model.Schedule{}, Total: len(matched), Page: page, PageSize: size}
	if from := (page - 1) * size; from < len(matched) {
		out.Items = matched[from:min(from+size, len(matched))]
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCreate handles POST /schedules.
func (h *SchedulesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.ScheduleRequest
	if err := decodeBody("api.create_schedule", r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s, err := h.deps.CreateSchedule(r.Context(), req.Model())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// HandleGet handles GET /schedules/{connector}.
func (h *SchedulesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.GetSchedule(r.Context(), r.PathValue("connector"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleUpdate handles PUT /schedules/{connector}.
func (h *SchedulesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req types.SchedulePatch
	if err := decodeBody("api.update_schedule", r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s, err := h.deps.UpdateSchedule(r.Context(), r.PathValue("connector"), schedule.Patch{
		Cadence:   req.Cadence,
		Enabled:   req.Enabled,
		NextDueAt: req.NextDueAt,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleDelete handles DELETE /schedules/{connector}.
func (h *SchedulesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteSchedule(r.Context(), r.PathValue("connector")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
