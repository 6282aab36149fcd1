// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: bearer credential resolution
//
//	auth := middleware.NewAuthMiddleware(resolver, logger)
//	router.Use(auth.Handler)
//	// Resolves "Bearer <token>" or a raw token to an authz.Principal and
//	// stores it, with the client address, in the request context
//
// RequireAdmin: superuser and shared-secret principals only
//
//	admin.Use(middleware.RequireAdmin)
//
// RateLimitMiddleware: per-principal limits on tool traffic, backed by an
// in-process token bucket or a Redis fixed window
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "")
//	router.Use(middleware.NewRateLimitMiddleware(limiter, logger).Handler)
//
// # Related Packages
//
//   - pkg/authz: credential resolution and principals
//   - pkg/contextkeys: request context keys
package middleware
