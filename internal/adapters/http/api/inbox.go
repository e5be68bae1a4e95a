// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/scout/internal/domain/inbox"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
)

// InboxDependencies defines the review inbox operations.
type InboxDependencies interface {
	PendingItems(ctx context.Context, f inbox.Filter) ([]model.InboxItem, error)
	GetInboxItem(ctx context.Context, id string) (model.InboxItem, error)
	Decide(ctx context.Context, itemID string, d inbox.Decision) (model.InboxItem, error)
	Assign(ctx context.Context, itemID, assignee string) (model.InboxItem, error)
	Audit(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

// InboxHandler handles review inbox requests.
type InboxHandler struct {
	deps     InboxDependencies
	maxLimit int
}

// NewInboxHandler creates a new inbox handler.
func NewInboxHandler(deps InboxDependencies, maxLimit int) *InboxHandler {
	return &InboxHandler{deps: deps, maxLimit: maxLimit}
}

// HandlePending handles GET /inbox?assignee=&limit=.
func (h *InboxHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt("api.inbox_pending", r, "limit", h.maxLimit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	items, err := h.deps.PendingItems(r.Context(), inbox.Filter{
		Assignee: strings.TrimSpace(r.URL.Query().Get("assignee")),
		Limit:    limit,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	if items == nil {
		items = []model.InboxItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleGet handles GET /inbox/{id}.
func (h *InboxHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.deps.GetInboxItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleDecide handles POST /inbox/{id}/decision. A second decision on the
// same item is a conflict.
func (h *InboxHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	const op = "api.inbox_decide"
	var req types.DecisionRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	item, err := h.deps.Decide(r.Context(), r.PathValue("id"), inbox.Decision{
		Outcome:   model.InboxState(strings.ToUpper(strings.TrimSpace(req.Outcome))),
		Reviewer:  req.Reviewer,
		ProfileID: req.ProfileID,
		Notes:     req.Notes,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleAssign handles POST /inbox/{id}/assign.
func (h *InboxHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	const op = "api.inbox_assign"
	var req types.AssignRequest
	if err := decodeBody(op, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if strings.TrimSpace(req.Assignee) == "" {
		writeFailure(w, model.NewKind(op, ErrBadRequest, "missing assignee"))
		return
	}
	item, err := h.deps.Assign(r.Context(), r.PathValue("id"), req.Assignee)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleAudit handles GET /audit?limit=N.
func (h *InboxHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt("api.audit", r, "limit", h.maxLimit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	entries, err := h.deps.Audit(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
