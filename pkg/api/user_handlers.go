package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/httputil"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// UserHandlers issues user API tokens
type UserHandlers struct {
	tokens TokenIssuer
	logger *observability.Logger
}

// NewUserHandlers creates user handlers
func NewUserHandlers(tokens TokenIssuer, logger *observability.Logger) *UserHandlers {
	return &UserHandlers{tokens: tokens, logger: logger}
}

// RegisterRoutes registers user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/{id:[0-9]+}/token", h.issueToken).Methods("POST")
}

// issueToken replaces the user's token. The plaintext is only ever returned here.
func (h *UserHandlers) issueToken(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	token, err := h.tokens.Issue(r.Context(), id)
	if errors.Is(err, authz.ErrUserNotFound) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	h.logger.WithField("user_id", id).Info("user API token issued")
	httputil.WriteCreated(w, map[string]interface{}{
		"user_id": id,
		"token":   token,
	})
}
