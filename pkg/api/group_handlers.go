package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/nexus-mcp/pkg/grouping"
	"github.com/platinummonkey/nexus-mcp/pkg/httputil"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// GroupHandlers serves resource group administration
type GroupHandlers struct {
	groups Groups
	logger *observability.Logger
}

// NewGroupHandlers creates resource group handlers
func NewGroupHandlers(groups Groups, logger *observability.Logger) *GroupHandlers {
	return &GroupHandlers{groups: groups, logger: logger}
}

// RegisterRoutes registers resource group routes
func (h *GroupHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/resource-groups", h.listGroups).Methods("GET")
	router.HandleFunc("/resource-groups", h.createGroup).Methods("POST")
	router.HandleFunc("/resource-groups/regenerate", h.regenerate).Methods("POST")
	router.HandleFunc("/resource-groups/{id:[0-9]+}", h.getGroup).Methods("GET")
	router.HandleFunc("/resource-groups/{id:[0-9]+}", h.updateGroup).Methods("PUT")
	router.HandleFunc("/resource-groups/{id:[0-9]+}", h.deleteGroup).Methods("DELETE")
}

// CreateGroupRequest defines a custom resource group
type CreateGroupRequest struct {
	Namespace    string   `json:"namespace"`
	Resource     string   `json:"resource"`
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description"`
	OperationIDs []string `json:"operations"`
	SortOrder    int      `json:"sort_order"`
}

func writeGroupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, grouping.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, grouping.ErrNotCustom), errors.Is(err, grouping.ErrKeyExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, grouping.ErrInvalidGroup):
		httputil.WriteValidationError(w, err.Error())
	default:
		httputil.WriteAPIError(w, err)
	}
}

func (h *GroupHandlers) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if namespace := httputil.ParseQueryString(r, "namespace", ""); namespace != "" {
		filtered := make([]*grouping.Group, 0, len(groups))
		for _, g := range groups {
			if g.Namespace == namespace {
				filtered = append(filtered, g)
			}
		}
		groups = filtered
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"groups": groups,
		"count":  len(groups),
	})
}

func (h *GroupHandlers) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	g, err := h.groups.Get(r.Context(), id)
	if err != nil {
		writeGroupError(w, err)
		return
	}
	httputil.WriteSuccess(w, g)
}

func (h *GroupHandlers) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var u grouping.GroupUpdate
	if !httputil.ParseJSONOrError(w, r, &u) {
		return
	}

	g, err := h.groups.Update(r.Context(), id, u)
	if err != nil {
		writeGroupError(w, err)
		return
	}
	h.logger.WithFields(map[string]interface{}{
		"group_id":  g.ID,
		"group_key": g.Key,
	}).Info("resource group updated")
	httputil.WriteSuccess(w, g)
}

func (h *GroupHandlers) createGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	g := &grouping.Group{
		Namespace:    strings.TrimSpace(req.Namespace),
		Resource:     strings.TrimSpace(req.Resource),
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		OperationIDs: req.OperationIDs,
		SortOrder:    req.SortOrder,
		Enabled:      true,
	}
	if err := h.groups.CreateCustom(r.Context(), g); err != nil {
		writeGroupError(w, err)
		return
	}
	h.logger.WithFields(map[string]interface{}{
		"group_id":   g.ID,
		"group_key":  g.Key,
		"operations": len(g.OperationIDs),
	}).Info("custom resource group created")
	httputil.WriteCreated(w, g)
}

func (h *GroupHandlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.groups.DeleteCustom(r.Context(), id); err != nil {
		writeGroupError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *GroupHandlers) regenerate(w http.ResponseWriter, r *http.Request) {
	namespace := httputil.ParseQueryString(r, "namespace", "")
	if namespace == "" {
		httputil.WriteValidationError(w, "namespace is required")
		return
	}
	force, err := httputil.ParseQueryBool(r, "force", true)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	result, err := h.groups.Regenerate(r.Context(), namespace, force)
	if err != nil {
		writeGroupError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}
