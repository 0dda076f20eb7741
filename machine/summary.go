package machine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PathSummary is the read-only view of one execution path.
type PathSummary struct {
	ID     string     `json:"id"`
	Status PathStatus `json:"status"`

	// Current is the node the path sits on.
	Current string `json:"current"`

	// Visits is the number of history entries.
	Visits int `json:"visits"`

	// Transitions lists the outgoing edges available from Current,
	// formatted "label -> target" (or just the target when unlabeled),
	// in declaration order. Guards are not evaluated here.
	Transitions []string `json:"transitions,omitempty"`

	// MergedInto names the surviving path when this one was absorbed at a
	// barrier.
	MergedInto string `json:"merged_into,omitempty"`
}

// GraphNode is one node of the rendering-ready graph form.
type GraphNode struct {
	Name string   `json:"name"`
	Kind NodeKind `json:"kind"`

	// Paths lists the ids of paths currently positioned on this node.
	Paths []string `json:"paths,omitempty"`

	// Visited reports whether any path has entered this node.
	Visited bool `json:"visited"`
}

// GraphEdge is one edge of the rendering-ready graph form.
type GraphEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`

	// Taken reports whether some path traversed this edge.
	Taken bool `json:"taken"`
}

// GraphView is the rendering-ready form of an execution: the full graph with
// per-node occupancy and per-edge traversal marks. Consumers (CLIs,
// visualizers) decide how to draw it.
type GraphView struct {
	Machine string      `json:"machine"`
	Nodes   []GraphNode `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
}

// Summary is a read-only snapshot of execution progress: status, counters,
// elapsed time, and per-path positions with their available transitions.
type Summary struct {
	ExecutionID string        `json:"execution_id"`
	Machine     string        `json:"machine"`
	Status      Status        `json:"status"`
	Steps       int           `json:"steps"`
	Turns       int           `json:"turns"`
	Elapsed     time.Duration `json:"elapsed"`

	Active    int `json:"active"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	Paths []PathSummary `json:"paths"`

	// Error is the execution-level failure message, empty otherwise.
	Error string `json:"error,omitempty"`
}

// Summarize builds a point-in-time summary of the execution.
func (e *Execution) Summarize() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{
		ExecutionID: e.id,
		Machine:     e.model.Name,
		Status:      e.status,
		Steps:       e.steps,
		Turns:       e.turns,
		Elapsed:     time.Since(e.started),
	}
	if e.execErr != nil {
		s.Error = e.execErr.Error()
	}

	for _, p := range e.paths {
		ps := PathSummary{
			ID:         p.ID,
			Status:     p.Status,
			Current:    p.Current,
			Visits:     len(p.History),
			MergedInto: p.MergedInto,
		}
		if p.Status == PathActive || p.Status == PathWaiting {
			for _, edge := range e.model.Outgoing(p.Current) {
				for _, to := range edge.To {
					if edge.Label != "" {
						ps.Transitions = append(ps.Transitions, edge.Label+" -> "+to)
					} else {
						ps.Transitions = append(ps.Transitions, to)
					}
				}
			}
		}
		s.Paths = append(s.Paths, ps)

		switch p.Status {
		case PathActive:
			s.Active++
		case PathWaiting:
			s.Waiting++
		case PathCompleted:
			s.Completed++
		case PathFailed:
			s.Failed++
		}
	}
	return s
}

// Line renders the summary as a compact one-liner:
//
//	review-flow [running] steps=4 turns=1 paths=2/1/0/0 elapsed=130ms
//
// The paths figure is active/waiting/completed/failed.
func (s Summary) Line() string {
	return fmt.Sprintf("%s [%s] steps=%d turns=%d paths=%d/%d/%d/%d elapsed=%s",
		s.Machine, s.Status, s.Steps, s.Turns,
		s.Active, s.Waiting, s.Completed, s.Failed,
		s.Elapsed.Round(time.Millisecond))
}

// Verbose renders the summary as a multi-line report with one block per
// path, including the transitions available from its current node.
func (s Summary) Verbose() string {
	var b strings.Builder
	fmt.Fprintf(&b, "machine:   %s\n", s.Machine)
	fmt.Fprintf(&b, "execution: %s\n", s.ExecutionID)
	fmt.Fprintf(&b, "status:    %s\n", s.Status)
	fmt.Fprintf(&b, "steps:     %d  turns: %d  elapsed: %s\n",
		s.Steps, s.Turns, s.Elapsed.Round(time.Millisecond))
	if s.Error != "" {
		fmt.Fprintf(&b, "error:     %s\n", s.Error)
	}
	fmt.Fprintf(&b, "paths:     %d active, %d waiting, %d completed, %d failed\n",
		s.Active, s.Waiting, s.Completed, s.Failed)
	for _, p := range s.Paths {
		fmt.Fprintf(&b, "  %s [%s] at %s (%d visits)", p.ID, p.Status, p.Current, p.Visits)
		if p.MergedInto != "" {
			fmt.Fprintf(&b, " merged into %s", p.MergedInto)
		}
		b.WriteString("\n")
		for _, t := range p.Transitions {
			fmt.Fprintf(&b, "    -> %s\n", t)
		}
	}
	return b.String()
}

// Graph builds the rendering-ready graph form: every model node and edge,
// marked with current path occupancy and traversal history.
func (e *Execution) Graph() GraphView {
	e.mu.Lock()
	defer e.mu.Unlock()

	occupancy := make(map[string][]string)
	visited := make(map[string]bool)
	taken := make(map[string]bool)
	for _, p := range e.paths {
		if p.Status == PathActive || p.Status == PathWaiting {
			occupancy[p.Current] = append(occupancy[p.Current], p.ID)
		}
		for i, v := range p.History {
			visited[v.Node] = true
			if i > 0 {
				taken[p.History[i-1].Node+"\x00"+v.Node] = true
			}
		}
	}

	gv := GraphView{Machine: e.model.Name}
	for _, n := range e.model.Nodes {
		ids := append([]string{}, occupancy[n.Name]...)
		sort.Strings(ids)
		gv.Nodes = append(gv.Nodes, GraphNode{
			Name:    n.Name,
			Kind:    n.Kind,
			Paths:   ids,
			Visited: visited[n.Name],
		})
	}
	for _, edge := range e.model.Edges {
		for _, to := range edge.To {
			gv.Edges = append(gv.Edges, GraphEdge{
				From:  edge.From,
				To:    to,
				Label: edge.Label,
				Taken: taken[edge.From+"\x00"+to],
			})
		}
	}
	return gv
}
