// Package machine provides the core execution engine for Machina workflows.
package machine

// NodeKind tags the role a node plays in a machine graph.
//
// Kinds are a closed set fixed at compilation. The executor never performs
// ad-hoc type inspection: everything it needs to know about a node is carried
// by its kind, its annotations, and its attributes.
type NodeKind string

const (
	// KindTask is a unit of work.
	KindTask NodeKind = "task"

	// KindState is a named state in the machine.
	KindState NodeKind = "state"

	// KindContext declares values contributed to the shared context.
	KindContext NodeKind = "context"

	// KindInput marks a node whose output comes from outside the machine.
	KindInput NodeKind = "input"

	// KindResult is a terminal node; a path reaching it completes.
	KindResult NodeKind = "result"

	// KindInit is a declared entry point.
	KindInit NodeKind = "init"

	// KindDecision marks a node whose outgoing transition is always resolved
	// by the decision provider, even when only one candidate edge exists.
	KindDecision NodeKind = "decision"
)

// Arrow describes the drawn semantics of an edge.
//
// Most arrow kinds are interpretation metadata only: they document a
// relationship but do not participate in control flow. Only ArrowPlain,
// ArrowBidirectional, and ArrowAssociationClass are traversable.
type Arrow string

const (
	ArrowPlain            Arrow = "plain"
	ArrowDependency       Arrow = "dependency"
	ArrowInheritance      Arrow = "inheritance"
	ArrowComposition      Arrow = "composition"
	ArrowAggregation      Arrow = "aggregation"
	ArrowBidirectional    Arrow = "bidirectional"
	ArrowAssociationClass Arrow = "association-class"
)

// Traversable reports whether edges drawn with this arrow participate in
// control flow.
func (a Arrow) Traversable() bool {
	switch a {
	case ArrowPlain, ArrowBidirectional, ArrowAssociationClass, "":
		return true
	default:
		return false
	}
}

// AttrType is the declared type annotation of a node attribute.
type AttrType string

const (
	AttrString AttrType = "string"
	AttrNumber AttrType = "number"
	AttrBool   AttrType = "bool"
	AttrList   AttrType = "list"
	AttrAny    AttrType = "any"
)

// AttrValue is a typed attribute value. A value is either a literal (Raw) or
// a template string containing "{{...}}" references resolved against other
// nodes' attributes and the shared context at read time.
type AttrValue struct {
	// Type is the declared type annotation. Empty means untyped (AttrAny).
	Type AttrType `json:"type,omitempty"`

	// Optional permits the value to be absent without a validation error.
	Optional bool `json:"optional,omitempty"`

	// Raw is the literal value. nil when the attribute is template-only or
	// declared optional without a value.
	Raw any `json:"raw,omitempty"`

	// Template, when non-empty, is resolved against the shared context and
	// node attributes before use.
	Template string `json:"template,omitempty"`
}

// Effect is a context mutation declared on a node. When a path enters the
// node, Key is set to the resolved Value in the shared execution context.
type Effect struct {
	Key   string    `json:"key"`
	Value AttrValue `json:"value"`
}

// Node is a single vertex of a machine graph. Nodes are immutable after
// compilation; the executor only reads them.
type Node struct {
	// Name is the node identity, unique within the machine.
	Name string `json:"name"`

	// Kind tags the node's role.
	Kind NodeKind `json:"kind"`

	// Children lists nested node names in declaration order.
	Children []string `json:"children,omitempty"`

	// Attrs maps attribute names to typed values.
	Attrs map[string]AttrValue `json:"attrs,omitempty"`

	// Annotations holds flags such as "async", "checkpoint", "decision",
	// "terminal", or "join" (with an expected-arrival-count value).
	Annotations map[string]string `json:"annotations,omitempty"`

	// Effects are context mutations applied when a path enters this node.
	Effects []Effect `json:"effects,omitempty"`

	// Outputs names the open-ended outputs this node may produce through the
	// decision provider.
	Outputs []string `json:"outputs,omitempty"`
}

// Annotated reports whether the node carries the named annotation.
func (n Node) Annotated(name string) bool {
	_, ok := n.Annotations[name]
	return ok
}

// Terminal reports whether a path reaching this node with no eligible
// outgoing edge completes rather than fails.
func (n Node) Terminal() bool {
	return n.Kind == KindResult || n.Annotated("terminal")
}

// Decision reports whether the node's outgoing transition must be resolved by
// the decision provider.
func (n Node) Decision() bool {
	return n.Kind == KindDecision || n.Annotated("decision")
}

// Edge is a directed, optionally guarded transition. An edge may target
// several nodes at once (fan-out): the first target continues the firing
// path, every extra target spawns a new path.
type Edge struct {
	// From is the source node name.
	From string `json:"from"`

	// To lists target node names. Must be non-empty.
	To []string `json:"to"`

	// Guard, when non-nil, must evaluate true against the shared context for
	// the edge to be eligible. Nil guards are always eligible.
	Guard *Condition `json:"guard,omitempty"`

	// Label names the transition in history entries and decision options.
	Label string `json:"label,omitempty"`

	// Arrow carries the drawn semantics. Zero value is ArrowPlain.
	Arrow Arrow `json:"arrow,omitempty"`

	// Attrs holds edge-level metadata. Not consulted by control flow.
	Attrs map[string]AttrValue `json:"attrs,omitempty"`
}

// name returns the label used when presenting this edge as a decision
// option: the explicit label if set, otherwise the first target.
func (e Edge) name() string {
	if e.Label != "" {
		return e.Label
	}
	if len(e.To) > 0 {
		return e.To[0]
	}
	return ""
}

// Model is the full machine graph: nodes and edges in declaration order plus
// machine-level attributes and annotations.
//
// A Model is produced by the compiler and owned by it; the executor holds a
// read-only reference for the lifetime of an execution. Self-modifying
// machines produce a new Model and a fresh execution, never mutate a live
// one. Declaration order matters: edge tie-breaks and entry-point path ids
// both follow it.
type Model struct {
	Name        string               `json:"name"`
	Nodes       []Node               `json:"nodes"`
	Edges       []Edge               `json:"edges"`
	EntryPoints []string             `json:"entry_points"`
	Attrs       map[string]AttrValue `json:"attrs,omitempty"`
	Annotations map[string]string    `json:"annotations,omitempty"`
}

// NodeByName returns the named node. The second result is false when the
// model declares no such node.
func (m *Model) NodeByName(name string) (Node, bool) {
	for _, n := range m.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// Outgoing returns the traversable edges leaving the named node, in
// declaration order. Bidirectional edges are traversable from either end;
// when walked backwards the reported target is the edge's From node.
func (m *Model) Outgoing(name string) []Edge {
	var out []Edge
	for _, e := range m.Edges {
		if !e.Arrow.Traversable() {
			continue
		}
		if e.From == name {
			out = append(out, e)
			continue
		}
		if e.Arrow == ArrowBidirectional {
			for _, to := range e.To {
				if to == name {
					rev := e
					rev.From = name
					rev.To = []string{e.From}
					out = append(out, rev)
					break
				}
			}
		}
	}
	return out
}

// Incoming returns the traversable edges entering the named node.
func (m *Model) Incoming(name string) []Edge {
	var in []Edge
	for _, e := range m.Edges {
		if !e.Arrow.Traversable() {
			continue
		}
		for _, to := range e.To {
			if to == name {
				in = append(in, e)
				break
			}
		}
		if e.Arrow == ArrowBidirectional && e.From == name {
			in = append(in, e)
		}
	}
	return in
}

// entries returns the declared entry points, falling back to nodes of
// KindInit when the model lists none explicitly.
func (m *Model) entries() []string {
	if len(m.EntryPoints) > 0 {
		return m.EntryPoints
	}
	var out []string
	for _, n := range m.Nodes {
		if n.Kind == KindInit {
			out = append(out, n.Name)
		}
	}
	return out
}
