// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable classification of a flow failure. Using a custom
// type ensures only the predefined kinds can appear where a kind is expected.
type ErrorKind string

const (
	// KindValidation marks a malformed start location or missing goal,
	// rejected before any resource is acquired.
	KindValidation ErrorKind = "VALIDATION_ERROR"
	// KindNavigation marks an unreachable location, bad HTTP status, or a
	// navigation timeout. Fatal; zero steps recorded.
	KindNavigation ErrorKind = "NAVIGATION_ERROR"
	// KindPerception marks an unexpected failure while extracting
	// candidates. The loop terminates gracefully with partial steps.
	KindPerception ErrorKind = "PERCEPTION_ERROR"
	// KindOracle marks an unreachable decision maker or a structurally
	// invalid decision. Fatal; partial steps are still returned.
	KindOracle ErrorKind = "ORACLE_ERROR"
	// KindExecution marks an action whose fallback strategies were all
	// exhausted. Recorded per-step, non-fatal by default.
	KindExecution ErrorKind = "EXECUTION_ERROR"
)

// FlowError is the error type surfaced to flow callers. It pairs a stable
// kind with a human readable message and an optional wrapped cause.
type FlowError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Cause }

// Is matches two FlowErrors by kind, so callers can use errors.Is with a
// bare &FlowError{Kind: ...} sentinel.
func (e *FlowError) Is(target error) bool {
	var fe *FlowError
	if !errors.As(target, &fe) {
		return false
	}
	return e.Kind == fe.Kind
}

// NewFlowError builds a FlowError with a formatted message.
func NewFlowError(kind ErrorKind, cause error, format string, args ...interface{}) *FlowError {
	return &FlowError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// KindOf extracts the kind from an error chain, or "" if no FlowError is
// present.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
