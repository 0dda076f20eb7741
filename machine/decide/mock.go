package decide

import (
	"context"
	"sync"
)

// Mock is a scripted Provider for tests.
//
// Each Decide call returns the next response in order; when the script is
// consumed the last response repeats. Every call is captured for later
// assertion. Thread-safe.
//
// Example:
//
//	mock := &decide.Mock{
//	    Responses: []decide.Response{
//	        {Selected: []string{"approve"}},
//	        {Selected: []string{"ship"}},
//	    },
//	}
type Mock struct {
	// Responses is the scripted sequence to return.
	Responses []Response

	// Err, if set, is returned by every Decide call instead of a response.
	Err error

	// Calls records every request, in order.
	Calls []Request

	mu  sync.Mutex
	idx int
}

// Decide implements Provider.
func (m *Mock) Decide(ctx context.Context, req Request) (Response, error) {
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.Err != nil {
		return Response{}, m.Err
	}
	if len(m.Responses) == 0 {
		return Response{}, nil
	}

	idx := m.idx
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.idx++
	}
	return m.Responses[idx], nil
}

// CallCount returns how many times Decide has been invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears call history and rewinds the script.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.idx = 0
}
