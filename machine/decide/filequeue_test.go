package decide

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileQueueAnswered(t *testing.T) {
	dir := t.TempDir()
	q := &FileQueue{Dir: dir, Interval: 5 * time.Millisecond}
	req := reviewRequest()

	// Operator side: wait for the request file, then answer it.
	done := make(chan error, 1)
	go func() {
		reqPath := filepath.Join(dir, "requests", req.RequestID+".json")
		for i := 0; i < 200; i++ {
			if _, err := os.Stat(reqPath); err == nil {
				data, _ := json.Marshal(Response{Selected: []string{"approve"}})
				done <- os.WriteFile(filepath.Join(dir, "responses", req.RequestID+".json"), data, 0o644)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		done <- errors.New("request file never appeared")
	}()

	resp, err := q.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if werr := <-done; werr != nil {
		t.Fatalf("operator write failed: %v", werr)
	}
	if len(resp.Selected) != 1 || resp.Selected[0] != "approve" {
		t.Errorf("response = %v, want approve", resp.Selected)
	}
}

func TestFileQueueWaitBudget(t *testing.T) {
	q := &FileQueue{
		Dir:        t.TempDir(),
		Interval:   5 * time.Millisecond,
		WaitBudget: 20 * time.Millisecond,
	}
	req := reviewRequest()

	_, err := q.Decide(context.Background(), req)
	if !errors.Is(err, ErrAwaitingInput) {
		t.Fatalf("Decide() error = %v, want ErrAwaitingInput after the wait budget", err)
	}

	// The answer arrives while the execution is paused; a retry picks it up
	// immediately without re-posting.
	data, _ := json.Marshal(Response{Selected: []string{"reject"}})
	respPath := filepath.Join(q.Dir, "responses", req.RequestID+".json")
	if err := os.WriteFile(respPath, data, 0o644); err != nil {
		t.Fatalf("writing response: %v", err)
	}
	resp, err := q.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("retry Decide() error: %v", err)
	}
	if resp.Selected[0] != "reject" {
		t.Errorf("retry response = %v, want reject", resp.Selected)
	}
}

func TestFileQueueContextCancel(t *testing.T) {
	q := &FileQueue{Dir: t.TempDir(), Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	if _, err := q.Decide(ctx, reviewRequest()); !errors.Is(err, context.Canceled) {
		t.Errorf("Decide() error = %v, want context.Canceled", err)
	}
}

func TestFileQueueDeadlineIsTimeout(t *testing.T) {
	q := &FileQueue{Dir: t.TempDir(), Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	if _, err := q.Decide(ctx, reviewRequest()); !errors.Is(err, ErrDecisionTimeout) {
		t.Errorf("Decide() error = %v, want ErrDecisionTimeout", err)
	}
}

func TestFileLogRoundTrip(t *testing.T) {
	log := NewFileLog(t.TempDir())
	ctx := context.Background()

	for i, sel := range []string{"first", "second", "third"} {
		rec := Record{
			RequestID: reviewRequest().RequestID,
			Timestamp: time.Now().UTC(),
			Context:   RecordContext{Session: "s1", Node: "Review"},
			Response:  Response{Selected: []string{sel}},
		}
		if err := log.Append(ctx, "s1", rec); err != nil {
			t.Fatalf("Append() #%d error: %v", i, err)
		}
	}

	records, err := log.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for i, want := range []string{"first", "second", "third"} {
		if records[i].Response.Selected[0] != want {
			t.Errorf("records[%d] = %v, want %s (arrival order)", i, records[i].Response.Selected, want)
		}
	}

	// Unknown sessions are empty, not an error.
	empty, err := log.Session(ctx, "missing")
	if err != nil || len(empty) != 0 {
		t.Errorf("Session(missing) = %v, %v, want empty", empty, err)
	}
}
