// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/types"
)

// SettingsDependencies defines runtime settings access.
type SettingsDependencies interface {
	Settings() model.Settings
	UpdateSettings(ctx context.Context, next model.Settings) (model.Settings, error)
}

// SettingsHandler handles settings requests.
type SettingsHandler struct {
	deps SettingsDependencies
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(deps SettingsDependencies) *SettingsHandler {
	return &SettingsHandler{deps: deps}
}

// HandleGet handles GET /settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.FromSettings(h.deps.Settings()))
}

// HandleUpdate handles PUT /settings. Invalid thresholds or unknown
// connectors are refused without changing anything.
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req types.Settings
	if err := decodeBody("api.update_settings", r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	next, err := h.deps.UpdateSettings(r.Context(), req.Model())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromSettings(next))
}
