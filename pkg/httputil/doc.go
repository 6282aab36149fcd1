// Package httputil holds the JSON response, request parsing and middleware
// helpers shared by the MCP transport and the admin API.
//
// Typed errors from pkg/apierr are written with WriteAPIError, which picks a
// status from the error type and emits the same payload a tool result carries:
//
//	httputil.WriteAPIError(w, apierr.Permission(apierr.CodeEditModeRequired, "Edit mode required"))
//	// 403 {"error":"Edit mode required","type":"PermissionError","code":"edit_mode_required"}
package httputil
