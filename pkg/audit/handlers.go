package audit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/nexus-mcp/pkg/httputil"
)

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	store Store
	now   func() time.Time
}

// NewHandlers creates new audit handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{
		store: store,
		now:   time.Now,
	}
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit", h.listEntries).Methods("GET")
	router.HandleFunc("/audit/stats", h.getStats).Methods("GET")
	router.HandleFunc("/audit/export", h.exportEntries).Methods("GET")
	router.HandleFunc("/audit/{id:[0-9]+}", h.getEntry).Methods("GET")
}

// listEntries handles GET /audit
func (h *Handlers) listEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	filter = filter.Normalize()

	entries, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// getEntry handles GET /audit/{id}
func (h *Handlers) getEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	entry, err := h.store.Get(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if entry == nil {
		httputil.WriteNotFoundError(w, "audit entry not found")
		return
	}

	httputil.WriteSuccess(w, entry)
}

// exportEntries handles GET /audit/export
func (h *Handlers) exportEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	format, ok := ParseExportFormat(r.URL.Query().Get("format"))
	if !ok {
		httputil.WriteValidationError(w, "format must be one of csv, json, ndjson")
		return
	}

	data, err := h.store.Export(r.Context(), filter, format)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+ExportFilename(format, h.now()))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// getStats handles GET /audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	startTime, err := parseTime(r, "start_time")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	endTime, err := parseTime(r, "end_time")
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	stats, err := h.store.GetStats(r.Context(), startTime, endTime)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, stats)
}

// parseFilter parses a search filter from query parameters
func parseFilter(r *http.Request) (SearchFilter, error) {
	query := r.URL.Query()
	filter := SearchFilter{
		OperationID: query.Get("operation_id"),
		HTTPMethod:  query.Get("http_method"),
	}

	var err error
	if filter.ClusterID, err = parseInt64(query.Get("cluster_id"), "cluster_id"); err != nil {
		return filter, err
	}
	if filter.UserID, err = parseInt64(query.Get("user_id"), "user_id"); err != nil {
		return filter, err
	}
	if filter.StatusMin, err = parseInt(query.Get("status_min"), "status_min"); err != nil {
		return filter, err
	}
	if filter.StatusMax, err = parseInt(query.Get("status_max"), "status_max"); err != nil {
		return filter, err
	}
	if filter.StartTime, err = parseTime(r, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = parseTime(r, "end_time"); err != nil {
		return filter, err
	}

	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", DefaultLimit); err != nil {
		return filter, fmt.Errorf("invalid limit")
	}
	if filter.Limit > MaxLimit {
		return filter, fmt.Errorf("limit must be at most %d", MaxLimit)
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil || filter.Offset < 0 {
		return filter, fmt.Errorf("invalid offset")
	}

	return filter, nil
}

func parseInt64(s, name string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

func parseInt(s, name string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

func parseTime(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: expected RFC3339", name)
	}
	return &t, nil
}
