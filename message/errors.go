package message

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by task functions. Callers match them with
// errors.Is through the wrapping FunctionError.
var (
	// ErrInvalidFieldPath is returned by Update when the path does not
	// start with the literal "data" segment.
	ErrInvalidFieldPath = errors.New("invalid field path")

	// ErrMissingSource is returned by Parse when the payload carries
	// neither inline content nor a file URL.
	ErrMissingSource = errors.New("payload has no content or url")

	// ErrUnsupportedFunction is returned when a task names a function
	// kind that is declared but not implemented (Validate, Publish).
	ErrUnsupportedFunction = errors.New("function not supported")

	// ErrAuditOverflow is the runaway-loop guard: a workflow may not
	// grow a message's audit trail past MaxAuditEntries.
	ErrAuditOverflow = errors.New("audit log exceeded maximum size")
)

// FunctionError is a task-level failure. The transaction (if any) has
// been rolled back and no AuditLog entry was appended.
type FunctionError struct {
	Function string
	Code     int
	Reason   string
	Err      error
}

func (e *FunctionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%d): %s: %v", e.Function, e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failed (%d): %s", e.Function, e.Code, e.Reason)
}

func (e *FunctionError) Unwrap() error { return e.Err }

func newFunctionError(function string, code int, reason string, err error) *FunctionError {
	return &FunctionError{Function: function, Code: code, Reason: reason, Err: err}
}

// SchemaValidationError reports that a decoded document does not conform
// to its declared payload schema.
type SchemaValidationError struct {
	Schema string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation against %s failed: %v", e.Schema, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// WorkflowError is a workflow-level failure for one message. The record
// that carried the message must not be acknowledged; the broker will
// redeliver it.
type WorkflowError struct {
	WorkflowID string
	Version    uint16
	Code       int
	Reason     string
	Err        error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow %s v%d failed (%d): %s: %v", e.WorkflowID, e.Version, e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("workflow %s v%d failed (%d): %s", e.WorkflowID, e.Version, e.Code, e.Reason)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// NewWorkflowError builds a workflow-level failure wrapping err.
func NewWorkflowError(workflowID string, version uint16, code int, reason string, err error) *WorkflowError {
	return &WorkflowError{WorkflowID: workflowID, Version: version, Code: code, Reason: reason, Err: err}
}
