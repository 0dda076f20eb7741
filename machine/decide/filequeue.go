package decide

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileQueue is a Provider backed by a queue directory watched by an external
// operator: each decision writes requests/<id>.json and polls for
// responses/<id>.json until it appears or the context is done.
//
// Layout under the root directory:
//
//	requests/<request-id>.json    written by the engine
//	responses/<request-id>.json   written by the operator
//
// When WaitBudget is positive and elapses before an answer arrives, Decide
// returns ErrAwaitingInput so the executor can pause the execution instead
// of failing the path; a later Decide with the same request id picks the
// answer up if it has appeared in the meantime.
type FileQueue struct {
	// Dir is the queue root.
	Dir string

	// Interval is the polling interval. Zero means 100ms.
	Interval time.Duration

	// WaitBudget bounds how long one Decide call polls before reporting
	// ErrAwaitingInput. Zero means poll until the context is done.
	WaitBudget time.Duration
}

// Decide implements Provider.
func (q *FileQueue) Decide(ctx context.Context, req Request) (Response, error) {
	reqDir := filepath.Join(q.Dir, "requests")
	respDir := filepath.Join(q.Dir, "responses")
	for _, dir := range []string{reqDir, respDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Response{}, fmt.Errorf("failed to create queue dir: %w", err)
		}
	}

	respPath := filepath.Join(respDir, req.RequestID+".json")
	reqPath := filepath.Join(reqDir, req.RequestID+".json")

	// Re-posting an already-answered request just collects the answer.
	if resp, ok, err := readResponse(respPath); err != nil {
		return Response{}, err
	} else if ok {
		return resp, nil
	}

	if _, err := os.Stat(reqPath); os.IsNotExist(err) {
		data, err := json.MarshalIndent(req, "", "  ")
		if err != nil {
			return Response{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		if err := os.WriteFile(reqPath, data, 0o644); err != nil {
			return Response{}, fmt.Errorf("failed to write request: %w", err)
		}
	}

	interval := q.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	var deadline <-chan time.Time
	if q.WaitBudget > 0 {
		timer := time.NewTimer(q.WaitBudget)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return Response{}, ErrDecisionTimeout
			}
			return Response{}, ctx.Err()
		case <-deadline:
			return Response{}, ErrAwaitingInput
		case <-ticker.C:
			resp, ok, err := readResponse(respPath)
			if err != nil {
				return Response{}, err
			}
			if ok {
				return resp, nil
			}
		}
	}
}

func readResponse(path string) (Response, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Response{}, false, nil
	}
	if err != nil {
		return Response{}, false, fmt.Errorf("failed to read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp, true, nil
}
