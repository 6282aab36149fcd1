// Package apierr defines the error taxonomy shared by catalog loading,
// authorization, dispatch, upstream calls and audit persistence.
//
// Every error carries a Type (the family), a Code (the specific condition)
// and a caller-facing Message, so clients can tell "need more permission"
// from "retry" from "fix arguments".
package apierr

import (
	"errors"
	"fmt"
)

// Type is the error family reported to tool callers
type Type string

const (
	TypeCatalog    Type = "CatalogError"
	TypePermission Type = "PermissionError"
	TypeDispatch   Type = "DispatchError"
	TypeUpstream   Type = "UpstreamError"
	TypeAuditWrite Type = "AuditWriteError"
)

// Codes
const (
	CodeCatalogInvalid = "catalog_invalid"

	CodeOperationNotPermitted = "operation_not_permitted"
	CodeClusterNotPermitted   = "cluster_not_permitted"
	CodeClusterNotFound       = "cluster_not_found"
	CodeEditModeRequired      = "edit_mode_required"
	CodeUnsupportedMethod     = "unsupported_method"
	CodeUnauthenticated       = "unauthenticated"

	CodeMissingPathParameter = "missing_path_parameter"
	CodeUnknownTool          = "unknown_tool"
	CodeInvalidArguments     = "invalid_arguments"

	CodeUpstreamStatus      = "upstream_status"
	CodeUpstreamUnreachable = "upstream_unreachable"
	CodeUpstreamAuthFailed  = "upstream_auth_failed"

	CodeAuditWriteFailed = "audit_write_failed"
)

// Error is a typed, structured error
type Error struct {
	Type    Type
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail sets a detail field and returns the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToolPayload renders the error as the JSON object placed in tool result content
func (e *Error) ToolPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"error": e.Error(),
		"type":  string(e.Type),
		"code":  e.Code,
	}
	for k, v := range e.Details {
		payload[k] = v
	}
	return payload
}

// New creates a typed error
func New(t Type, code, message string) *Error {
	return &Error{Type: t, Code: code, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(t Type, code, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around a cause
func Wrap(t Type, code string, err error, message string) *Error {
	return &Error{Type: t, Code: code, Message: message, Err: err}
}

// As extracts an *Error from an error chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is an *Error of the given type
func Is(err error, t Type) bool {
	e, ok := As(err)
	return ok && e.Type == t
}

// HasCode reports whether err is an *Error with the given code
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// Permission creates a PermissionError
func Permission(code, message string) *Error {
	return New(TypePermission, code, message)
}

// Dispatch creates a DispatchError
func Dispatch(code, message string) *Error {
	return New(TypeDispatch, code, message)
}

// Catalog creates a CatalogError for a namespace
func Catalog(namespace string, err error) *Error {
	return &Error{
		Type:    TypeCatalog,
		Code:    CodeCatalogInvalid,
		Message: fmt.Sprintf("invalid API document for namespace %s: %v", namespace, err),
		Details: map[string]interface{}{"namespace": namespace},
		Err:     err,
	}
}

// Upstream creates an UpstreamError carrying the remote status code (0 when unreachable)
func Upstream(status int, message string, err error) *Error {
	code := CodeUpstreamStatus
	if status == 0 {
		code = CodeUpstreamUnreachable
	}
	e := &Error{Type: TypeUpstream, Code: code, Message: message, Err: err}
	if status != 0 {
		e.WithDetail("status_code", status)
	}
	return e
}
