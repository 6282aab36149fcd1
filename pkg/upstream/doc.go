// Package upstream is the HTTP client for Nexus Dashboard clusters.
//
// A Client holds one authenticated session per cluster: it logs in lazily
// with POST /login, keeps the session cookies and bearer token, and retries
// transient failures. A 401 on the first attempt triggers exactly one
// re-login. Pool hands out one Client per cluster.
package upstream
