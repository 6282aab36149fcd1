package audit

import (
	"encoding/json"
	"strings"
	"time"
)

// Record is one append-only audit entry. Exactly one is written per dispatch
// attempt, whether it succeeded, was denied or failed upstream.
type Record struct {
	ID             int64           `json:"id"`
	ClusterID      *int64          `json:"cluster_id,omitempty"`
	UserID         *int64          `json:"user_id,omitempty"`
	ClientIP       string          `json:"client_ip,omitempty"`
	OperationID    string          `json:"operation_id"`
	HTTPMethod     string          `json:"http_method"`
	Path           string          `json:"path"`
	RequestBody    json.RawMessage `json:"request_body,omitempty"`
	ResponseStatus *int            `json:"response_status,omitempty"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// IsSuccess reports a 2xx upstream status
func (r *Record) IsSuccess() bool {
	return r.ResponseStatus != nil && *r.ResponseStatus >= 200 && *r.ResponseStatus < 300
}

// IsError reports a 4xx/5xx upstream status or any recorded error message
func (r *Record) IsError() bool {
	return r.ErrorMessage != "" || (r.ResponseStatus != nil && *r.ResponseStatus >= 400)
}

// Denied reports a record written before any upstream call
func (r *Record) Denied() bool {
	return r.ResponseStatus == nil && r.ErrorMessage != ""
}

// Entry is a record joined with the name and URL of its cluster
type Entry struct {
	Record
	ClusterName string `json:"cluster_name,omitempty"`
	ClusterURL  string `json:"cluster_url,omitempty"`
}

// Search limits
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// SearchFilter selects audit entries. Nil fields are not filtered on.
type SearchFilter struct {
	ClusterID   *int64     `json:"cluster_id,omitempty"`
	UserID      *int64     `json:"user_id,omitempty"`
	OperationID string     `json:"operation_id,omitempty"`
	HTTPMethod  string     `json:"http_method,omitempty"`
	StatusMin   *int       `json:"status_min,omitempty"`
	StatusMax   *int       `json:"status_max,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// Normalize clamps pagination and upper-cases the method
func (f SearchFilter) Normalize() SearchFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.HTTPMethod = strings.ToUpper(f.HTTPMethod)
	return f
}

// Stats summarizes the audit trail
type Stats struct {
	Total      int64            `json:"total"`
	Successful int64            `json:"successful"`
	Failed     int64            `json:"failed"`
	ByMethod   map[string]int64 `json:"by_method"`
	ByStatus   map[string]int64 `json:"by_status"`
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// ParseExportFormat maps a query value to a format, defaulting to CSV
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch ExportFormat(strings.ToLower(s)) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, true
	case ExportFormatJSON:
		return ExportFormatJSON, true
	case ExportFormatNDJSON:
		return ExportFormatNDJSON, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type of an export
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatJSON:
		return "application/json"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	default:
		return "text/csv"
	}
}

// RetentionPolicy bounds how long audit entries stay in the database
type RetentionPolicy struct {
	RetentionDays int `json:"retention_days"`
}

// Cutoff returns the oldest timestamp kept under the policy
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}
