// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/platinummonkey/nexus-mcp/pkg/contextkeys"
//   ctx = contextkeys.WithPrincipal(ctx, principal)
//   p, ok := authz.PrincipalFromContext(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains authz.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: MCP routes, admin API, dispatcher
	// Type: authz.Principal
	PrincipalKey Key = "principal"

	// ClientIPKey contains the caller address recorded in the audit trail
	// Set by: middleware.AuthMiddleware
	// Used by: dispatch.Dispatcher, audit records
	// Type: string
	ClientIPKey Key = "client_ip"

	// ConnectionIDKey contains the MCP session id of the request
	// Set by: mcp.Handler when X-Connection-Id is present
	// Used by: message routing, logging
	// Type: string
	ConnectionIDKey Key = "connection_id"
)

// WithPrincipal adds the resolved principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal retrieves the raw principal value from context
func GetPrincipal(ctx context.Context) interface{} {
	return ctx.Value(PrincipalKey)
}

// WithClientIP adds the caller address to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the caller address from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// WithConnectionID adds an MCP session id to the context
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, id)
}

// GetConnectionID retrieves the MCP session id from context
func GetConnectionID(ctx context.Context) string {
	if id, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return id
	}
	return ""
}
