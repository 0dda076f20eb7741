// Package emit provides pluggable observability for machine executions.
//
// Executions report lifecycle events (path advanced, barrier merged,
// decision pending, checkpoint created, execution completed) to an Emitter.
// Implementations range from discarding everything (NullEmitter) to
// structured logging (LogEmitter, ZerologEmitter), in-memory capture for
// tests and dashboards (BufferedEmitter), and distributed tracing
// (OTelEmitter).
package emit

// Event is a single observability event from a machine execution.
type Event struct {
	// ExecutionID identifies the execution that emitted this event.
	ExecutionID string

	// Step is the global step counter at emit time. Zero for events not
	// tied to a step (validation, checkpoint table operations).
	Step int

	// PathID identifies the execution path involved. Empty for
	// execution-level events.
	PathID string

	// NodeID is the graph node involved. Empty for execution-level events.
	NodeID string

	// Msg names the event, e.g. "path_advanced", "barrier_merged",
	// "decision_pending", "execution_completed".
	Msg string

	// Meta carries event-specific structured data. Common keys:
	//   - "transition": edge label taken
	//   - "expected": arrivals a barrier still waits for
	//   - "checkpoint_id": checkpoint identifier
	//   - "error": failure details
	Meta map[string]any
}
