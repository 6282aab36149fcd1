package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/nexus-mcp/pkg/httputil"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// CatalogHandlers serves catalog reloads
type CatalogHandlers struct {
	catalog CatalogLoader
	groups  Groups
	logger  *observability.Logger
}

// NewCatalogHandlers creates catalog handlers. groups may be nil.
func NewCatalogHandlers(c CatalogLoader, groups Groups, logger *observability.Logger) *CatalogHandlers {
	return &CatalogHandlers{catalog: c, groups: groups, logger: logger}
}

// RegisterRoutes registers catalog routes
func (h *CatalogHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/catalog/reload", h.reload).Methods("POST")
}

// reload re-reads every namespace. Per-namespace failures are reported in
// the body; the request itself only fails when grouping cannot catch up.
func (h *CatalogHandlers) reload(w http.ResponseWriter, r *http.Request) {
	report := h.catalog.LoadAll(r.Context())

	h.logger.WithFields(map[string]interface{}{
		"loaded":     len(report.Loaded),
		"failed":     len(report.Failed),
		"operations": report.Operations,
	}).Info("catalog reloaded")

	if h.groups != nil {
		if err := h.groups.EnsureAll(r.Context()); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}
	httputil.WriteSuccess(w, report)
}
