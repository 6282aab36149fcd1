// Package api provides the administrative REST surface of the Nexus Dashboard
// MCP server.
//
// # Overview
//
// Every route lives under /api and runs behind the same bearer middleware as
// the MCP transport, followed by middleware.RequireAdmin: only superusers and
// the legacy shared-secret principal get through.
//
//   - Audit: search, statistics and export of the audit trail
//   - Security: read and toggle edit mode and audit logging
//   - Resource groups: list, toggle, custom groups and regeneration
//   - Catalog: reload every namespace document
//   - Users: issue a user API token
//
// # Usage
//
//	admin := api.NewServer(api.Dependencies{
//		Audit:    audit.NewDBStore(recorder),
//		EditMode: gate,
//		Groups:   groups,
//		Catalog:  cat,
//		Tokens:   authz.NewTokenGenerator(store, resolver),
//	}, logger)
//	admin.RegisterRoutes(router, authMiddleware.Handler)
//
// Dependencies left nil leave their routes unmounted.
package api
