// Package authz resolves bearer credentials to principals and decides whether
// a principal may invoke an operation against a cluster.
//
// A principal is one of three kinds:
//
//   - LegacyBypass: the shared secret, with full access
//   - Superuser: a stored user flagged as superuser, with full access
//   - RoleBasedUser: a stored user whose operations are the union of its
//     roles' grants and whose clusters are its explicit assignments
//
// Resolution results are cached by token hash for a short TTL. Cluster
// access fails closed: a user with no assigned clusters can reach none.
package authz
