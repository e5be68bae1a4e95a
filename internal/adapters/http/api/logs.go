package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
)

// LogDependencies defines ingestion log access.
type LogDependencies interface {
	ListLogs(ctx context.Context, f repository.LogFilter) (repository.LogPage, error)
	GetLog(ctx context.Context, id string) (model.IngestionLog, error)
	AddLog(ctx context.Context, l model.IngestionLog) (model.IngestionLog, error)
	DeleteLog(ctx context.Context, id string) error
}

// LogsHandler handles ingestion log requests.
type LogsHandler struct {
	deps     LogDependencies
	maxLimit int
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(deps LogDependencies, maxLimit int) *LogsHandler {
	return &LogsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleList handles GET /logs?connector=&kind=&page=&page_size=.
func (h *LogsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_logs"
	q := r.URL.Query()
	f := repository.LogFilter{
		ConnectorID: strings.TrimSpace(q.Get("connector")),
		Kind:        strings.TrimSpace(q.Get("kind")),
	}
	var err error
	if f.Page, err = queryInt(op, r, "page", 0); err != nil {
		writeFailure(w, err)
		return
	}
	if f.PageSize, err = queryInt(op, r, "page_size", h.maxLimit); err != nil {
		writeFailure(w, err)
		return
	}
	page, err := h.deps.ListLogs(r.Context(), f)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if page.Items == nil {
		page.Items = []model.IngestionLog{}
	}
	writeJSON(w, http.StatusOK, types.LogPage(page))
}

// HandleCreate handles POST /logs.
func (h *LogsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req model.IngestionLog
	if err := decodeBody("api.create_log", r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	l, err := h.deps.AddLog(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// HandleGet handles GET /logs/{id}.
func (h *LogsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	l, err := h.deps.GetLog(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// HandleDelete handles DELETE /logs/{id}.
func (h *LogsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteLog(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
