package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/nexus-mcp/pkg/editmode"
	"github.com/platinummonkey/nexus-mcp/pkg/httputil"
	"github.com/platinummonkey/nexus-mcp/pkg/middleware"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// SecurityHandlers serves the edit mode toggle
type SecurityHandlers struct {
	gate   EditMode
	logger *observability.Logger
}

// NewSecurityHandlers creates security handlers
func NewSecurityHandlers(gate EditMode, logger *observability.Logger) *SecurityHandlers {
	return &SecurityHandlers{gate: gate, logger: logger}
}

// RegisterRoutes registers security routes
func (h *SecurityHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/security/edit-mode", h.getEditMode).Methods("GET")
	router.HandleFunc("/security/edit-mode", h.setEditMode).Methods("PUT")
	router.HandleFunc("/security/edit-mode/refresh", h.refresh).Methods("POST")
}

// EditModeRequest changes one or both security flags
type EditModeRequest struct {
	Enabled             *bool `json:"edit_mode_enabled"`
	AuditLoggingEnabled *bool `json:"audit_logging_enabled"`
}

func (h *SecurityHandlers) getEditMode(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.gate.Snapshot(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}

func (h *SecurityHandlers) setEditMode(w http.ResponseWriter, r *http.Request) {
	var req EditModeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Enabled == nil && req.AuditLoggingEnabled == nil {
		httputil.WriteValidationError(w, "edit_mode_enabled or audit_logging_enabled is required")
		return
	}

	var cfg *editmode.Config
	var err error
	if req.Enabled != nil {
		if cfg, err = h.gate.Set(r.Context(), *req.Enabled); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}
	if req.AuditLoggingEnabled != nil {
		if cfg, err = h.gate.SetAuditLogging(r.Context(), *req.AuditLoggingEnabled); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}

	fields := map[string]interface{}{
		"edit_mode_enabled":     cfg.Enabled,
		"audit_logging_enabled": cfg.AuditLoggingEnabled,
	}
	if p := middleware.GetPrincipal(r); p != nil {
		fields["changed_by"] = p.Username()
	}
	h.logger.WithFields(fields).Warn("security configuration changed")

	httputil.WriteSuccess(w, cfg)
}

func (h *SecurityHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.gate.Refresh(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}
