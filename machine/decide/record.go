package decide

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// RecordContext carries the metadata stored alongside each recorded decision.
type RecordContext struct {
	Session string `json:"session"`
	Machine string `json:"machine,omitempty"`
	Node    string `json:"node,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Record is one captured decision: written once during recording, read many
// times during playback. Ordering matters: playback is strictly sequential
// per session.
type Record struct {
	RequestID string        `json:"request_id"`
	Timestamp time.Time     `json:"timestamp"`
	Context   RecordContext `json:"context"`
	Request   Request       `json:"request"`
	Response  Response      `json:"response"`
}

// Log persists ordered decision records grouped by session.
type Log interface {
	// Append adds a record to the end of the session's sequence.
	Append(ctx context.Context, session string, rec Record) error

	// Session returns all records of a session in arrival order.
	Session(ctx context.Context, session string) ([]Record, error)
}

// Recorder wraps a live Provider and persists every request/response pair to
// an ordered log before returning, making the run replayable later.
type Recorder struct {
	mu      sync.Mutex
	next    Provider
	log     Log
	session string
	seq     int
}

// NewRecorder creates a recording wrapper around next. All records are
// appended to the given session of log.
func NewRecorder(next Provider, log Log, session string) *Recorder {
	return &Recorder{next: next, log: log, session: session}
}

// Decide forwards to the wrapped provider, then persists the exchange. A
// failed append fails the decision: an unrecorded decision would silently
// break later playback.
func (r *Recorder) Decide(ctx context.Context, req Request) (Response, error) {
	resp, err := r.next.Decide(ctx, req)
	if err != nil {
		return Response{}, err
	}

	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	rec := Record{
		RequestID: fmt.Sprintf("%s-%04d", r.session, seq),
		Timestamp: time.Now().UTC(),
		Context: RecordContext{
			Session: r.session,
			Machine: req.Machine,
			Node:    req.Node,
			Path:    req.Path,
		},
		Request:  req,
		Response: resp,
	}
	if err := r.log.Append(ctx, r.session, rec); err != nil {
		return Response{}, fmt.Errorf("failed to record decision: %w", err)
	}
	return resp, nil
}

// FileLog stores one JSON file per record under dir/<session>/, named by
// zero-padded sequence so lexicographic order is arrival order.
type FileLog struct {
	mu  sync.Mutex
	dir string
	seq map[string]int
}

// NewFileLog creates a file-backed Log rooted at dir.
func NewFileLog(dir string) *FileLog {
	return &FileLog{dir: dir, seq: make(map[string]int)}
}

// Append implements Log.
func (l *FileLog) Append(_ context.Context, session string, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sessDir := filepath.Join(l.dir, session)
	if err := os.MkdirAll(sessDir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	l.seq[session]++
	name := fmt.Sprintf("%06d-%s.json", l.seq[session], rec.RequestID)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sessDir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Session implements Log. Records are returned in file-name order, which is
// arrival order by construction.
func (l *FileLog) Session(_ context.Context, session string) ([]Record, error) {
	sessDir := filepath.Join(l.dir, session)
	entries, err := os.ReadDir(sessDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(sessDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", name, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", name, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// MemLog is an in-memory Log for tests and short-lived sessions.
type MemLog struct {
	mu       sync.Mutex
	sessions map[string][]Record
}

// NewMemLog creates an empty in-memory log.
func NewMemLog() *MemLog {
	return &MemLog{sessions: make(map[string][]Record)}
}

// Append implements Log.
func (l *MemLog) Append(_ context.Context, session string, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[session] = append(l.sessions[session], rec)
	return nil
}

// Session implements Log.
func (l *MemLog) Session(_ context.Context, session string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.sessions[session]))
	copy(out, l.sessions[session])
	return out, nil
}
