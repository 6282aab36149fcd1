// Package mcp implements the tool-calling transport: JSON-RPC 2.0 request
// handling, per-principal tool listing and the HTTP/SSE session layer.
//
// A client opens GET /mcp/sse and keeps the stream open. Requests are posted
// to /mcp/message; each response is returned in the HTTP reply and also
// queued to the session named by X-Connection-Id. Without that header the
// response is broadcast to every open session, which suits the single-client
// deployments this server targets.
package mcp
