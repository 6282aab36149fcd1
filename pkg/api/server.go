package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/nexus-mcp/pkg/audit"
	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/editmode"
	"github.com/platinummonkey/nexus-mcp/pkg/grouping"
	"github.com/platinummonkey/nexus-mcp/pkg/middleware"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// EditMode is the security configuration the admin surface controls
type EditMode interface {
	Snapshot(ctx context.Context) (*editmode.Config, error)
	Set(ctx context.Context, enabled bool) (*editmode.Config, error)
	SetAuditLogging(ctx context.Context, enabled bool) (*editmode.Config, error)
	Refresh(ctx context.Context) (*editmode.Config, error)
}

// Groups is the resource group administration the admin surface exposes
type Groups interface {
	List(ctx context.Context) ([]*grouping.Group, error)
	Get(ctx context.Context, id int64) (*grouping.Group, error)
	Update(ctx context.Context, id int64, u grouping.GroupUpdate) (*grouping.Group, error)
	CreateCustom(ctx context.Context, g *grouping.Group) error
	DeleteCustom(ctx context.Context, id int64) error
	Regenerate(ctx context.Context, namespace string, force bool) (*grouping.GenerateResult, error)
	EnsureAll(ctx context.Context) error
}

// CatalogLoader reloads namespace documents
type CatalogLoader interface {
	LoadAll(ctx context.Context) *catalog.LoadReport
}

// TokenIssuer issues user API tokens
type TokenIssuer interface {
	Issue(ctx context.Context, userID int64) (string, error)
}

// Dependencies are the services behind the admin routes. Nil members leave
// their routes unregistered.
type Dependencies struct {
	Audit    audit.Store
	EditMode EditMode
	Groups   Groups
	Catalog  CatalogLoader
	Tokens   TokenIssuer
}

// Server is the admin REST surface mounted under /api
type Server struct {
	deps   Dependencies
	logger *observability.Logger
}

// NewServer creates the admin server
func NewServer(deps Dependencies, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Server{
		deps:   deps,
		logger: logger.WithField("component", "admin_api"),
	}
}

// RegisterRoutes mounts /api on r. Every route requires an authenticated
// superuser or legacy principal.
func (s *Server) RegisterRoutes(r *mux.Router, auth func(http.Handler) http.Handler) {
	router := r.PathPrefix("/api").Subrouter()
	router.Use(auth)
	router.Use(middleware.RequireAdmin)

	if s.deps.Audit != nil {
		audit.NewHandlers(s.deps.Audit).RegisterRoutes(router)
	}
	if s.deps.EditMode != nil {
		NewSecurityHandlers(s.deps.EditMode, s.logger).RegisterRoutes(router)
	}
	if s.deps.Groups != nil {
		NewGroupHandlers(s.deps.Groups, s.logger).RegisterRoutes(router)
	}
	if s.deps.Catalog != nil {
		NewCatalogHandlers(s.deps.Catalog, s.deps.Groups, s.logger).RegisterRoutes(router)
	}
	if s.deps.Tokens != nil {
		NewUserHandlers(s.deps.Tokens, s.logger).RegisterRoutes(router)
	}
}

// Handler returns a router serving only the admin routes
func (s *Server) Handler(auth func(http.Handler) http.Handler) http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r, auth)
	return r
}
