package models

import "time"

// Status is the three-state outcome every Response carries; the warning
// state lets a caller distinguish "completed but check the warnings"
// from a clean run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Kind taxonomizes *why* a Response is a warning or an error, independent
// of Go's error interface, so the classification survives a JSON round
// trip across a process boundary (e.g. a sandboxed strategy's result).
type Kind string

const (
	KindNone             Kind = ""
	KindValidation       Kind = "validation_error"
	KindDataUnavailable  Kind = "data_unavailable"
	KindInsufficientData Kind = "insufficient_data"
	KindPermissionDenied Kind = "permission_denied"
	KindSandboxViolation Kind = "sandbox_violation"
	KindResourceExceeded Kind = "resource_exceeded"
	KindPartialFailure   Kind = "partial_failure"
	KindInternal         Kind = "internal_error"
)

// Response is the envelope in which the CLI's backtest and factor
// commands report results as JSON. It carries a Kind-tagged error and an
// open metadata bag.
type Response struct {
	Status    Status                 `json:"status"`
	Data      interface{}            `json:"data,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode Kind                   `json:"error_code,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Success builds a StatusSuccess Response carrying data.
func Success(data interface{}) Response {
	return Response{Status: StatusSuccess, Data: data, Timestamp: now()}
}

// SuccessWithMessage builds a StatusSuccess Response with a human message.
func SuccessWithMessage(data interface{}, message string) Response {
	return Response{Status: StatusSuccess, Data: data, Message: message, Timestamp: now()}
}

// Warning builds a StatusWarning Response: the operation completed but the
// caller should inspect message/error_code before trusting the result fully.
func Warning(data interface{}, message string, kind Kind) Response {
	return Response{Status: StatusWarning, Data: data, Message: message, ErrorCode: kind, Timestamp: now()}
}

// Error builds a StatusError Response from a Go error and a Kind.
func Error(err error, kind Kind) Response {
	r := Response{Status: StatusError, ErrorCode: kind, Timestamp: now()}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// WithMetadata attaches (or merges into) the Response's metadata bag and
// returns the Response for chaining.
func (r Response) WithMetadata(key string, value interface{}) Response {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
	return r
}

// IsSuccess reports whether Status == success.
func (r Response) IsSuccess() bool { return r.Status == StatusSuccess }

// IsWarning reports whether Status == warning.
func (r Response) IsWarning() bool { return r.Status == StatusWarning }

// IsError reports whether Status == error.
func (r Response) IsError() bool { return r.Status == StatusError }

// now is a seam so tests can avoid depending on wall-clock time if needed;
// production code calls it directly (Response.Timestamp is metadata about
// when the envelope was built, not an engine decision — wall-clock is fine
// here, unlike inside the backtest day-loop).
func now() time.Time { return time.Now().UTC() }
