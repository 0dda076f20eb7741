package decide

import (
	"context"
	"fmt"
	"sync"
)

// Playback replays recorded decisions in strict arrival order.
//
// Playback never inspects request content to select a response; ordering is
// positional, so recordings must be kept aligned with deterministic execution
// order. In strict mode an exhausted or missing recording is a hard failure;
// in lenient mode the configured fallback response is substituted and a
// warning is counted.
type Playback struct {
	mu       sync.Mutex
	records  []Record
	pos      int
	strict   bool
	fallback Response
	warnings []string
}

// NewPlayback creates a strict playback provider over a session loaded from
// log.
func NewPlayback(ctx context.Context, log Log, session string) (*Playback, error) {
	records, err := log.Session(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %q: %w", session, err)
	}
	return &Playback{records: records, strict: true}, nil
}

// NewPlaybackRecords creates a strict playback provider over pre-loaded
// records.
func NewPlaybackRecords(records []Record) *Playback {
	return &Playback{records: records, strict: true}
}

// Lenient switches the provider to lenient mode: when the recording is
// exhausted, fallback is substituted and a warning recorded instead of
// failing. Returns the receiver for chaining.
func (p *Playback) Lenient(fallback Response) *Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strict = false
	p.fallback = fallback
	return p
}

// Decide implements Provider by returning the next unconsumed recorded
// response.
func (p *Playback) Decide(ctx context.Context, req Request) (Response, error) {
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pos >= len(p.records) {
		if p.strict {
			return Response{}, fmt.Errorf("%w: node %s (position %d)",
				ErrRecordingExhausted, req.Node, p.pos)
		}
		p.warnings = append(p.warnings, fmt.Sprintf(
			"position %d (node %s): recording exhausted, fallback substituted", p.pos, req.Node))
		p.pos++
		return p.fallback, nil
	}

	rec := p.records[p.pos]
	p.pos++
	return rec.Response, nil
}

// Remaining returns the number of unconsumed records.
func (p *Playback) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos >= len(p.records) {
		return 0
	}
	return len(p.records) - p.pos
}

// Warnings returns the substitution warnings accumulated in lenient mode.
func (p *Playback) Warnings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.warnings))
	copy(out, p.warnings)
	return out
}
