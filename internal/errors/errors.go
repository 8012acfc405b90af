package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all engine failure modes
type ErrorCode string

const (
	// MalformedFacts indicates the parsing collaborator supplied facts that
	// cannot form a valid graph (unknown edge endpoints, duplicate components)
	MalformedFacts ErrorCode = "MALFORMED_FACTS"
	// CycleWithoutEntryPoint indicates an irreducible unit with no externally
	// reachable component under a safety level that forbids dead-code work
	CycleWithoutEntryPoint ErrorCode = "CYCLE_WITHOUT_ENTRY_POINT"
	// StepApplyFailure indicates the rewrite collaborator could not apply a
	// step's transformation
	StepApplyFailure ErrorCode = "STEP_APPLY_FAILURE"
	// StepVerifyFailure indicates postconditions were unmet or the risk tier
	// is disallowed by the active safety level
	StepVerifyFailure ErrorCode = "STEP_VERIFY_FAILURE"
	// BlockedForReview indicates execution paused awaiting an external
	// approve/reject decision; not a failure
	BlockedForReview ErrorCode = "BLOCKED_FOR_REVIEW"
	// Timeout indicates a collaborator call exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// PlanNotFound indicates no persisted plan exists for the given id
	PlanNotFound ErrorCode = "PLAN_NOT_FOUND"
	// SnapshotMissing indicates a graph snapshot hash has no stored blob
	SnapshotMissing ErrorCode = "SNAPSHOT_MISSING"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// EngineError represents an engine error with a stable code, message and
// structured details (unit ids, offending edges, risk rules)
type EngineError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new EngineError
func New(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new EngineError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *EngineError {
	return &EngineError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.cause
}

// WithDetail attaches a single detail key to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails replaces the error's detail map
func (e *EngineError) WithDetails(details map[string]interface{}) *EngineError {
	e.Details = details
	return e
}

// CodeOf extracts the engine error code from err, walking the wrap chain.
// Returns InternalError for non-engine errors.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given engine error code anywhere
// in its wrap chain
func HasCode(err error, code ErrorCode) bool {
	var ee *EngineError
	for errors.As(err, &ee) {
		if ee.Code == code {
			return true
		}
		err = ee.Unwrap()
		if err == nil {
			return false
		}
	}
	return false
}

// Recoverable reports whether the error allows the orchestrator to roll back
// and retry without surfacing to the caller
func Recoverable(err error) bool {
	switch CodeOf(err) {
	case StepApplyFailure, StepVerifyFailure, Timeout:
		return true
	default:
		return false
	}
}
