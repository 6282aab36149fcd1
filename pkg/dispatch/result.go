package dispatch

import (
	"encoding/json"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
)

// Outcome labels a dispatch for metrics
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeDenied      Outcome = "denied"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeUpstream    Outcome = "upstream_error"
	OutcomeUnreachable Outcome = "unreachable"
)

// Result is what a dispatch hands back to the transport
type Result struct {
	// Data is the decoded upstream reply on success
	Data interface{}
	// Err is set for every failure
	Err *apierr.Error
	// Status is the final upstream status, 0 when no reply was received
	Status int
	// Cluster names the cluster the call targeted
	Cluster string
	Outcome Outcome
	// AuditID is the id of the audit record, 0 if it was not persisted
	AuditID int64
}

// IsError reports a failed dispatch
func (r *Result) IsError() bool {
	return r.Err != nil
}

// Payload returns the JSON value placed in tool content
func (r *Result) Payload() interface{} {
	if r.Err != nil {
		return r.Err.ToolPayload()
	}
	return r.Data
}

// Text renders Payload as indented JSON
func (r *Result) Text() string {
	data, err := json.MarshalIndent(r.Payload(), "", "  ")
	if err != nil {
		fallback, _ := json.Marshal(map[string]interface{}{
			"error": "failed to encode result: " + err.Error(),
			"type":  string(apierr.TypeDispatch),
		})
		return string(fallback)
	}
	return string(data)
}
