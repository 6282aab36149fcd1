// Package dispatch turns a tool call into an authenticated REST request
// against a Nexus Dashboard cluster.
//
// Every call passes the same pipeline: path substitution, the global edit
// mode gate, the caller's role edit permission, operation and cluster
// authorization, and finally the upstream request. Whatever the outcome,
// exactly one audit record is written per call.
package dispatch
