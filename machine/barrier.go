package machine

import (
	"sort"
	"strconv"
)

// arrival is one path that has reached a barrier and is parked until the
// barrier releases.
type arrival struct {
	pathID string
	output string
}

// barrierState tracks pending arrivals per convergence node.
//
// A node is a barrier when it carries the "join" annotation. Its expected
// arrival count is the annotation value when that parses as an integer,
// otherwise the node's declared incoming traversable edge count. All
// bookkeeping happens inside the executor's serialized commit phase, so no
// locking is needed here.
type barrierState struct {
	model   *Model
	pending map[string][]arrival
}

func newBarrierState(m *Model) *barrierState {
	return &barrierState{model: m, pending: make(map[string][]arrival)}
}

// isBarrier reports whether the named node is a convergence barrier.
func (b *barrierState) isBarrier(name string) bool {
	node, ok := b.model.NodeByName(name)
	return ok && node.Annotated("join")
}

// expected returns the configured arrival count for a barrier node.
func (b *barrierState) expected(name string) int {
	node, ok := b.model.NodeByName(name)
	if !ok {
		return 0
	}
	if raw := node.Annotations["join"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	if n := len(b.model.Incoming(name)); n > 0 {
		return n
	}
	return 1
}

// arrive parks a path at the barrier. Arrivals accumulate until a later
// coordinating step releases the barrier; a path cannot arrive twice while
// parked.
func (b *barrierState) arrive(node, pathID, output string) {
	for _, a := range b.pending[node] {
		if a.pathID == pathID {
			return
		}
	}
	b.pending[node] = append(b.pending[node], arrival{pathID: pathID, output: output})
}

// ready lists barrier nodes whose expected arrival count has been met, in
// sorted order for deterministic release.
func (b *barrierState) ready() []string {
	var nodes []string
	for node, arrivals := range b.pending {
		if len(arrivals) >= b.expected(node) {
			nodes = append(nodes, node)
		}
	}
	sort.Strings(nodes)
	return nodes
}

// anyReady reports whether at least one barrier can release.
func (b *barrierState) anyReady() bool {
	for node, arrivals := range b.pending {
		if len(arrivals) >= b.expected(node) {
			return true
		}
	}
	return false
}

// take consumes a barrier's arrival set, clearing it for later waves.
func (b *barrierState) take(node string) []arrival {
	arrivals := b.pending[node]
	delete(b.pending, node)
	return arrivals
}

// survivor picks the continuing path for a merge: the lowest path id among
// the arrivals, so merge results are independent of arrival order.
func survivor(arrivals []arrival) string {
	ids := make([]string, len(arrivals))
	for i, a := range arrivals {
		ids[i] = a.pathID
	}
	sort.Strings(ids)
	return ids[0]
}

// waitingNodes lists barrier nodes that still hold parked paths.
func (b *barrierState) waitingNodes() []string {
	nodes := make([]string, 0, len(b.pending))
	for n := range b.pending {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// rebuild reconstructs pending arrivals from restored paths. Waiting paths
// sit at their barrier node with their arrival output as the last history
// entry.
func (b *barrierState) rebuild(paths []*Path) {
	b.pending = make(map[string][]arrival)
	for _, p := range paths {
		if p.Status != PathWaiting {
			continue
		}
		output := ""
		if len(p.History) > 0 {
			output = p.History[len(p.History)-1].Output
		}
		b.pending[p.Current] = append(b.pending[p.Current], arrival{
			pathID: p.ID,
			output: output,
		})
	}
	// Keep arrival order deterministic after a restore.
	for node := range b.pending {
		sort.Slice(b.pending[node], func(i, j int) bool {
			return b.pending[node][i].pathID < b.pending[node][j].pathID
		})
	}
}
