package emit

import "sync"

// BufferedEmitter stores events in memory, keyed by execution id, and
// supports filtered retrieval. Intended for tests, debugging, and
// post-execution analysis.
//
// All events are retained until Clear is called, so long-running
// deployments should prefer a logging or tracing backend.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // executionID -> events in emit order
}

// HistoryFilter selects events from an execution's history. Zero-value
// fields are unset; set fields combine with AND.
type HistoryFilter struct {
	PathID  string
	NodeID  string
	Msg     string
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its execution's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
}

// History returns all events for an execution in emit order. The returned
// slice is a copy.
func (b *BufferedEmitter) History(executionID string) []Event {
	return b.HistoryWithFilter(executionID, HistoryFilter{})
}

// HistoryWithFilter returns the events for an execution that match every
// set filter field, in emit order.
func (b *BufferedEmitter) HistoryWithFilter(executionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[executionID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.PathID != "" && event.PathID != filter.PathID {
		return false
	}
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinStep != nil && event.Step < *filter.MinStep {
		return false
	}
	if filter.MaxStep != nil && event.Step > *filter.MaxStep {
		return false
	}
	return true
}

// Clear drops stored events. A non-empty executionID clears only that
// execution; empty clears everything.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if executionID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, executionID)
}
