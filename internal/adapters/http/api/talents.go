// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
)

// TalentDependencies defines directory and dedupe reads plus operator
// corrections.
type TalentDependencies interface {
	SearchTalents(ctx context.Context, f repository.Filter) (repository.Page, error)
	GetTalent(ctx context.Context, id string) (model.TalentProfile, error)
	ArchiveTalent(ctx context.Context, id, operator string) (model.TalentProfile, error)
	GetCandidate(ctx context.Context, id string) (model.DedupeCandidate, error)
	RecordHistory(ctx context.Context, recordID string) ([]model.DedupeCandidate, error)
	ReopenRecord(ctx context.Context, recordID, operator, reason string) (model.DedupeCandidate, error)
}

// TalentsHandler handles talent directory requests.
type TalentsHandler struct {
	deps     TalentDependencies
	maxLimit int
}

// NewTalentsHandler creates a new talents handler.
func NewTalentsHandler(deps TalentDependencies, maxLimit int) *TalentsHandler {
	return &TalentsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleSearch handles GET /talents?q=&affiliation=&include_archived=&page=&page_size=.
func (h *TalentsHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search_talents"
	q := r.URL.Query()
	f := repository.Filter{
		Query:       strings.TrimSpace(q.Get("q")),
		Affiliation: strings.TrimSpace(q.Get("affiliation")),
	}
	if raw := q.Get("include_archived"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeFailure(w, model.NewKind(op, ErrBadRequest, "invalid include_archived %q", raw))
			return
		}
		f.IncludeArchived = v
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
	page, err := h.deps.SearchTalents(r.Context(), f)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.TalentPage(page))
}

// HandleGet handles GET /talents/{id}.
func (h *TalentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.GetTalent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleArchive handles POST /talents/{id}/archive.
func (h *TalentsHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	const op = "api.archive_talent"
	req, err := operatorRequest(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	p, err := h.deps.ArchiveTalent(r.Context(), r.PathValue("id"), req.Operator)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGetCandidate handles GET /candidates/{id}.
func (h *TalentsHandler) HandleGetCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.GetCandidate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleRecordHistory handles GET /records/{id}/history.
func (h *TalentsHandler) HandleRecordHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.deps.RecordHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if history == nil {
		history = []model.DedupeCandidate{}
	}
	writeJSON(w, http.StatusOK, history)
}

// HandleReopen handles POST /records/{id}/reopen.
func (h *TalentsHandler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	const op = "api.reopen_record"
	req, err := operatorRequest(op, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	c, err := h.deps.ReopenRecord(r.Context(), r.PathValue("id"), req.Operator, req.Reason)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func operatorRequest(op string, r *http.Request) (types.OperatorRequest, error) {
	var req types.OperatorRequest
	if err := decodeBody(op, r, &req); err != nil {
		return req, err
	}
	req.Operator = strings.TrimSpace(req.Operator)
	if req.Operator == "" {
		return req, model.NewKind(op, ErrBadRequest, "missing operator")
	}
	return req, nil
}
