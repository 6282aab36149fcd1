package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/contextkeys"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// PrincipalResolver maps a bearer credential to a principal
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string) (authz.Principal, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	resolver   PrincipalResolver
	logger     *observability.Logger
	trustProxy bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(resolver PrincipalResolver, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger.WithField("component", "auth"),
	}
}

// SetTrustProxyHeaders makes the middleware take the client address from
// X-Forwarded-For and X-Real-IP. Enable it only behind a proxy that sets them.
func (m *AuthMiddleware) SetTrustProxyHeaders(enabled bool) {
	m.trustProxy = enabled
}

// Handler wraps an HTTP handler with authentication.
// Accepts "Authorization: Bearer <token>" or the raw token.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := authz.ParseCredential(r.Header.Get("Authorization"))
		clientIP := ClientIP(r, m.trustProxy)

		principal, err := m.resolver.Resolve(r.Context(), credential)
		switch {
		case errors.Is(err, authz.ErrNoCredential):
			unauthorizedResponse(w, "missing authorization header")
			return
		case errors.Is(err, authz.ErrInvalidCredential):
			m.logger.WithField("client_ip", clientIP).Warn("rejected invalid credential")
			unauthorizedResponse(w, "invalid or expired token")
			return
		case err != nil:
			m.logger.WithError(err).Error("credential resolution failed")
			unauthorizedResponse(w, "unable to verify credential")
			return
		}

		ctx := authz.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithClientIP(ctx, clientIP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetPrincipal extracts the authenticated principal from request
func GetPrincipal(r *http.Request) authz.Principal {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		return nil
	}
	return p
}

// RequireAdmin allows only superuser and legacy principals through
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r)
		if p == nil {
			forbiddenResponse(w, "authentication required")
			return
		}
		if !p.FullAccess() {
			forbiddenResponse(w, "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// ClientIP returns the caller address. With trustProxy it prefers the first
// X-Forwarded-For hop, then X-Real-IP; header values that are not IP
// addresses are ignored. Otherwise only the connection's remote host counts.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			if ip := net.ParseIP(strings.TrimSpace(strings.Split(forwarded, ",")[0])); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
