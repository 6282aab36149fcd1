// Package audit records one append-only entry per tool dispatch.
//
// # Overview
//
// Every dispatch attempt produces exactly one Record: successful calls,
// permission denials (response_status empty, error_message set) and upstream
// failures alike. Recording is best-effort: the dispatcher logs a failed write
// and still returns the tool result.
//
// # Recorders
//
//   - DBRecorder: PostgreSQL audit_logs table, also the query backend
//   - FileRecorder: JSON lines with size-based rotation
//   - MultiRecorder: fan-out with a primary recorder
//   - GatedRecorder: honors the audit_logging_enabled security switch
//
// # Usage Example
//
//	rec, err := audit.NewDBRecorder(db)
//	gated := audit.NewGatedRecorder(rec, editGate, logger)
//	err = gated.Record(ctx, &audit.Record{
//		OperationID: "manage_getFabrics",
//		HTTPMethod:  "GET",
//		Path:        "/api/v1/manage/fabrics",
//	})
//
// # Query and Export
//
// Store searches by cluster, user, operation, method, status range and time
// window, joins cluster name and URL, and exports CSV, JSON or NDJSON.
//
// # Retention
//
// Archiver runs on a cron schedule, uploads entries older than the retention
// window to object storage as NDJSON, then deletes them.
package audit
