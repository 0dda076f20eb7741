package machine

import (
	"fmt"
	"strings"
)

// Issue is a single validation finding attached to a node.
type Issue struct {
	// Node names the node the finding is attached to. Empty for
	// machine-level findings.
	Node string

	// Code is a stable identifier: "dangling-edge", "unreachable", "orphan",
	// "cycle", "attr-type", "attr-missing", "no-entry".
	Code string

	// Message is the human-readable description.
	Message string
}

func (i Issue) String() string {
	if i.Node != "" {
		return fmt.Sprintf("%s: %s: %s", i.Code, i.Node, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// ValidationResult carries the findings of a validation pass. Errors block
// execution; warnings are advisory and surfaced for downstream reporting.
type ValidationResult struct {
	Errors   []Issue
	Warnings []Issue
}

// OK reports whether the model may execute. Warnings do not block.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate runs the structural and type checks against a model:
//
//   - every edge endpoint resolves to a declared node (error)
//   - the machine declares at least one entry point (error)
//   - every node is reachable from an entry point (warning)
//   - every node has at least one edge, incoming or outgoing (warning)
//   - cycles, each reported once with its node sequence (warning)
//   - attribute values match their declared type annotation, honoring the
//     optional modifier for absent values (error)
func Validate(m *Model) ValidationResult {
	var res ValidationResult

	names := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		names[n.Name] = true
	}

	// Dangling edge references are fatal: the executor's invariant is that
	// every endpoint resolves.
	for _, e := range m.Edges {
		if !names[e.From] {
			res.Errors = append(res.Errors, Issue{
				Node:    e.From,
				Code:    "dangling-edge",
				Message: fmt.Sprintf("edge source %q is not a declared node", e.From),
			})
		}
		for _, to := range e.To {
			if !names[to] {
				res.Errors = append(res.Errors, Issue{
					Node:    to,
					Code:    "dangling-edge",
					Message: fmt.Sprintf("edge target %q is not a declared node", to),
				})
			}
		}
	}

	entries := m.entries()
	if len(entries) == 0 {
		res.Errors = append(res.Errors, Issue{
			Code:    "no-entry",
			Message: "machine declares no entry point",
		})
	}

	// Reachability from entry points.
	reached := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		if reached[name] || !names[name] {
			return
		}
		reached[name] = true
		for _, e := range m.Outgoing(name) {
			for _, to := range e.To {
				walk(to)
			}
		}
	}
	for _, entry := range entries {
		walk(entry)
	}
	for _, n := range m.Nodes {
		if !reached[n.Name] {
			res.Warnings = append(res.Warnings, Issue{
				Node:    n.Name,
				Code:    "unreachable",
				Message: "node is not reachable from any entry point",
			})
		}
	}

	// Orphans: no edge in either direction.
	connected := make(map[string]bool)
	for _, e := range m.Edges {
		connected[e.From] = true
		for _, to := range e.To {
			connected[to] = true
		}
	}
	for _, n := range m.Nodes {
		if !connected[n.Name] {
			res.Warnings = append(res.Warnings, Issue{
				Node:    n.Name,
				Code:    "orphan",
				Message: "node has no incoming or outgoing edges",
			})
		}
	}

	res.Warnings = append(res.Warnings, findCycles(m)...)

	// Attribute typing.
	for _, n := range m.Nodes {
		for name, attr := range n.Attrs {
			if issue, ok := checkAttr(n.Name, name, attr); !ok {
				res.Errors = append(res.Errors, issue)
			}
		}
	}

	return res
}

// findCycles runs DFS with recursion-stack coloring and reports each distinct
// cycle once, keyed by its member set, with the node sequence that closes it.
func findCycles(m *Model) []Issue {
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // finished
	)
	color := make(map[string]int, len(m.Nodes))
	seen := make(map[string]bool)
	var issues []Issue
	var stack []string

	var dfs func(name string)
	dfs = func(name string) {
		color[name] = gray
		stack = append(stack, name)
		for _, e := range m.Outgoing(name) {
			for _, to := range e.To {
				switch color[to] {
				case white:
					dfs(to)
				case gray:
					// Close the cycle at the first occurrence of the target
					// on the stack.
					start := 0
					for i, s := range stack {
						if s == to {
							start = i
							break
						}
					}
					cycle := append(append([]string{}, stack[start:]...), to)
					key := cycleKey(cycle)
					if !seen[key] {
						seen[key] = true
						issues = append(issues, Issue{
							Node:    to,
							Code:    "cycle",
							Message: "cycle detected: " + strings.Join(cycle, " -> "),
						})
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
	}

	for _, n := range m.Nodes {
		if color[n.Name] == white {
			dfs(n.Name)
		}
	}
	return issues
}

// cycleKey builds an order-insensitive identity for a cycle so the same loop
// discovered from different entry nodes is reported once.
func cycleKey(cycle []string) string {
	members := append([]string{}, cycle[:len(cycle)-1]...)
	// Insertion sort keeps this dependency-free for tiny slices.
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j] < members[j-1]; j-- {
			members[j], members[j-1] = members[j-1], members[j]
		}
	}
	return strings.Join(members, "|")
}

// checkAttr validates one attribute value against its declared type.
func checkAttr(node, name string, attr AttrValue) (Issue, bool) {
	if attr.Raw == nil && attr.Template == "" {
		if attr.Optional {
			return Issue{}, true
		}
		return Issue{
			Node:    node,
			Code:    "attr-missing",
			Message: fmt.Sprintf("attribute %q has no value and is not optional", name),
		}, false
	}
	// Templated values resolve to strings at read time; their declared type
	// is checked against the resolved value by the consumer, not statically.
	if attr.Template != "" {
		return Issue{}, true
	}
	if attr.Type == "" || attr.Type == AttrAny {
		return Issue{}, true
	}

	ok := false
	switch attr.Type {
	case AttrString:
		_, ok = attr.Raw.(string)
	case AttrBool:
		_, ok = attr.Raw.(bool)
	case AttrNumber:
		_, ok = asNumber(attr.Raw)
	case AttrList:
		switch attr.Raw.(type) {
		case []any, []string:
			ok = true
		}
	}
	if !ok {
		return Issue{
			Node: node,
			Code: "attr-type",
			Message: fmt.Sprintf("attribute %q declared %s but holds %T",
				name, attr.Type, attr.Raw),
		}, false
	}
	return Issue{}, true
}
