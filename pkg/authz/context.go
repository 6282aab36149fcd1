package authz

import (
	"context"

	"github.com/platinummonkey/nexus-mcp/pkg/contextkeys"
)

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return contextkeys.WithPrincipal(ctx, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := contextkeys.GetPrincipal(ctx).(Principal)
	return p, ok
}
