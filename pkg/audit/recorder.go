package audit

import (
	"context"

	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// Recorder persists audit records
type Recorder interface {
	// Record appends one audit record. The record's ID is set on success.
	Record(ctx context.Context, record *Record) error

	// Close flushes any buffered records
	Close() error
}

// NopRecorder discards every record
type NopRecorder struct{}

// Record implements Recorder
func (NopRecorder) Record(ctx context.Context, record *Record) error { return nil }

// Close implements Recorder
func (NopRecorder) Close() error { return nil }

// Toggle reports whether audit persistence is currently switched on
type Toggle interface {
	AuditLoggingEnabled(ctx context.Context) bool
}

// GatedRecorder skips persistence while the security configuration has audit
// logging turned off. Skipped records are still logged at debug level.
type GatedRecorder struct {
	next   Recorder
	toggle Toggle
	logger *observability.Logger
}

// NewGatedRecorder wraps next with the audit_logging_enabled switch
func NewGatedRecorder(next Recorder, toggle Toggle, logger *observability.Logger) *GatedRecorder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &GatedRecorder{next: next, toggle: toggle, logger: logger}
}

// Record implements Recorder
func (g *GatedRecorder) Record(ctx context.Context, record *Record) error {
	if g.toggle != nil && !g.toggle.AuditLoggingEnabled(ctx) {
		g.logger.WithFields(map[string]interface{}{
			"operation_id": record.OperationID,
			"http_method":  record.HTTPMethod,
			"path":         record.Path,
		}).Debug("audit logging disabled, record not persisted")
		return nil
	}
	return g.next.Record(ctx, record)
}

// Close implements Recorder
func (g *GatedRecorder) Close() error {
	return g.next.Close()
}
