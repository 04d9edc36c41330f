package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures for callers that map them to responses
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindUnauthorized      Kind = "unauthorized"
	KindValidation        Kind = "validation_error"
	KindConflict          Kind = "conflict"
	KindUnavailable       Kind = "unavailable"
)

// Error is returned by every engine operation that fails
type Error struct {
	Kind      Kind
	ProjectID string
	Message   string
	Err       error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.ProjectID != "" {
		msg = fmt.Sprintf("%s: project %s", msg, e.ProjectID)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of an engine error, or "" for any other error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, projectID, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, ProjectID: projectID, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, projectID, message string, err error) *Error {
	return &Error{Kind: kind, ProjectID: projectID, Message: message, Err: err}
}

// WarningKind classifies non-fatal outcomes of a successful operation
type WarningKind string

const (
	WarnNoNodalAgency      WarningKind = "no_nodal_agency"
	WarnNoExecutingAgency  WarningKind = "no_executing_agency"
	WarnNoMonitoringAgency WarningKind = "no_monitoring_agency"
	WarnNotificationFailed WarningKind = "notification_failed"
)

// Warning reports a directory shortfall or a failed notification
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Message  string      `json:"message"`
	AgencyID string      `json:"agency_id,omitempty"`
}

// Stalls reports whether the warning leaves the workflow waiting on Resume
func (w Warning) Stalls() bool {
	switch w.Kind {
	case WarnNoNodalAgency, WarnNoExecutingAgency, WarnNoMonitoringAgency:
		return true
	default:
		return false
	}
}
