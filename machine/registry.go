package machine

import (
	"fmt"
	"sync"
)

// Registry tracks live executions by id so embedding applications (CLIs,
// servers) can look them up across requests. It holds executions only;
// durable state goes through a StateManager.
type Registry struct {
	mu    sync.RWMutex
	execs map[string]*Execution
	last  string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{execs: make(map[string]*Execution)}
}

// Register adds an execution. Re-registering the same id replaces it.
func (r *Registry) Register(e *Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[e.ID()] = e
	r.last = e.ID()
}

// Get returns the execution with the given id.
func (r *Registry) Get(id string) (*Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.execs[id]
	if !ok {
		return nil, &ExecError{Code: "EXECUTION_NOT_FOUND", Message: fmt.Sprintf("execution %s not registered", id)}
	}
	return e, nil
}

// Last returns the most recently registered execution, or nil when the
// registry is empty.
func (r *Registry) Last() *Execution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.execs[r.last]
}

// Remove drops an execution from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.execs, id)
	if r.last == id {
		r.last = ""
	}
}

// List returns the ids of registered executions in unspecified order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.execs))
	for id := range r.execs {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops every registered execution.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = make(map[string]*Execution)
	r.last = ""
}
