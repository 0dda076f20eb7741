package machine

import (
	"fmt"
	"time"
)

// PathStatus is the lifecycle state of a single execution path.
type PathStatus string

const (
	// PathActive paths are advanced by the next step.
	PathActive PathStatus = "active"

	// PathWaiting paths have arrived at a barrier and wait for the remaining
	// expected arrivals. They are excluded from per-step advancement.
	PathWaiting PathStatus = "waiting"

	// PathCompleted paths reached a terminal node or were absorbed into a
	// barrier merge. They stay in the path set for history but never move.
	PathCompleted PathStatus = "completed"

	// PathFailed paths hit a per-path error (decision failure, dangling
	// node). The error is recorded on the path.
	PathFailed PathStatus = "failed"
)

// Visit is one entry of a path's ordered history.
type Visit struct {
	Node       string    `json:"node"`
	Timestamp  time.Time `json:"timestamp"`
	Transition string    `json:"transition,omitempty"`
	Output     string    `json:"output,omitempty"`
}

// Path is one independent thread of control through the machine graph.
//
// Paths are created at machine start (one per declared entry point) or by a
// fan-out transition, and mutated only by the executor's commit phase.
type Path struct {
	// ID is the path identity. Ids are sequential ("p001", "p002", ...) so
	// that ascending lexicographic order equals creation order; the executor
	// commits in this order.
	ID string `json:"id"`

	// Current is the node the path currently occupies.
	Current string `json:"current"`

	// History is the ordered visit record, oldest first.
	History []Visit `json:"history"`

	// Status is the path lifecycle state.
	Status PathStatus `json:"status"`

	// Error describes why the path failed. Empty unless Status is PathFailed.
	Error string `json:"error,omitempty"`

	// MergedInto names the surviving path when this path was absorbed by a
	// barrier merge.
	MergedInto string `json:"merged_into,omitempty"`
}

// pathID formats the nth path id.
func pathID(n int) string {
	return fmt.Sprintf("p%03d", n)
}

// visit appends a history entry and moves the path to node.
func (p *Path) visit(node, transition, output string, at time.Time) {
	p.History = append(p.History, Visit{
		Node:       node,
		Timestamp:  at,
		Transition: transition,
		Output:     output,
	})
	p.Current = node
}

// fail marks the path failed with the given error.
func (p *Path) fail(err error) {
	p.Status = PathFailed
	if err != nil {
		p.Error = err.Error()
	}
}

// Nodes returns the visited node names in order. Convenience for tests and
// summaries.
func (p *Path) Nodes() []string {
	out := make([]string, len(p.History))
	for i, v := range p.History {
		out[i] = v.Node
	}
	return out
}
