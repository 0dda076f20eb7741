package machine

import (
	"time"

	"github.com/machina-run/machina/machine/emit"
)

// Options configures execution behavior. Zero values are valid: no step or
// invocation ceilings, no decision timeout, no observability.
type Options struct {
	// MaxSteps is the global step-counter ceiling. 0 means unlimited (use
	// with caution: a machine with a loop and no exit guard never stops).
	MaxSteps int

	// MaxNodeInvocations caps how many times any single node may be entered.
	// 0 means unlimited.
	MaxNodeInvocations int

	// DecisionTimeout bounds each decision-provider call. On expiry the call
	// fails with ErrDecisionTimeout and the owning path fails. 0 means no
	// timeout.
	DecisionTimeout time.Duration

	// Emitter receives observability events. Nil skips emission.
	Emitter emit.Emitter

	// Metrics receives Prometheus instrument updates. Nil skips them.
	Metrics *Metrics

	// States, when set, is used for checkpoint-on-entry annotations: a path
	// entering a node annotated "checkpoint" snapshots the execution into
	// this manager.
	States *StateManager
}

// Option is a functional option for configuring an execution.
type Option func(*Options)

// WithMaxSteps sets the global step ceiling.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithMaxNodeInvocations sets the per-node invocation ceiling.
func WithMaxNodeInvocations(n int) Option {
	return func(o *Options) { o.MaxNodeInvocations = n }
}

// WithDecisionTimeout bounds each decision-provider call.
func WithDecisionTimeout(d time.Duration) Option {
	return func(o *Options) { o.DecisionTimeout = d }
}

// WithEmitter routes observability events to the given emitter.
func WithEmitter(em emit.Emitter) Option {
	return func(o *Options) { o.Emitter = em }
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithStates attaches a state manager for checkpoint-on-entry annotations.
func WithStates(s *StateManager) Option {
	return func(o *Options) { o.States = s }
}
