package machine

import "errors"

// ErrMaxStepsExceeded indicates the execution reached its global step ceiling
// without completing. Resource exhaustion is always a reported failure, never
// a silent stop.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrMaxInvocationsExceeded indicates a single node was entered more times
// than the per-node invocation ceiling allows.
var ErrMaxInvocationsExceeded = errors.New("node exceeded maximum invocations limit")

// ErrStalledBarrier indicates paths were left waiting at a barrier that can
// no longer be released: its remaining expected arrivals have failed,
// completed elsewhere, or the execution budget ran out.
var ErrStalledBarrier = errors.New("barrier stalled: expected arrivals can no longer occur")

// ErrDanglingNode indicates a path reached a node with no eligible outgoing
// edge that is not marked terminal.
var ErrDanglingNode = errors.New("no eligible transition from non-terminal node")

// ErrValidationFailed indicates the model failed the validation gate with at
// least one error (warnings alone never block execution).
var ErrValidationFailed = errors.New("model validation failed")

// ErrExecutionDone indicates a step was requested on an execution that has
// already completed or failed.
var ErrExecutionDone = errors.New("execution is no longer running")

// ErrCheckpointNotFound is returned when a checkpoint id does not exist in
// the state manager's table.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrCorruptCheckpoint is returned when checkpoint bytes cannot be decoded
// or carry an unsupported format version. Distinct from not-found so callers
// can tell a bad payload from a missing one.
var ErrCorruptCheckpoint = errors.New("checkpoint data corrupt or version mismatch")

// ExecError is a structured error produced by executor and state-manager
// operations.
type ExecError struct {
	// Code is a stable machine-readable identifier.
	Code string

	// Message is the human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

func (e *ExecError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the wrapped cause for errors.Is / errors.As.
func (e *ExecError) Unwrap() error {
	return e.Err
}
