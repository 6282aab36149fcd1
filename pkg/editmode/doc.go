// Package editmode implements the global read-only / read-write switch that
// gates mutating HTTP verbs. The state lives in a single-row security_config
// table and is read through a TTL snapshot, optionally shared between
// replicas through Redis.
package editmode
