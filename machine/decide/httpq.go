package decide

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPQueue is a Provider that posts each request as JSON to an endpoint and
// decodes the JSON response body as the decision.
//
// Status handling:
//   - 200: body is decoded as a Response
//   - 202: the operator accepted the request but has not decided yet;
//     ErrAwaitingInput is returned and the executor pauses
//   - anything else: the decision fails with the status and body
type HTTPQueue struct {
	// URL is the decision endpoint.
	URL string

	// Client is the HTTP client to use. Nil means a client with a 30s
	// timeout.
	Client *http.Client

	// Headers are added to every request (e.g. authorization).
	Headers map[string]string
}

// NewHTTPQueue creates an HTTP-backed provider for the given endpoint.
func NewHTTPQueue(url string) *HTTPQueue {
	return &HTTPQueue{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Decide implements Provider.
func (q *HTTPQueue) Decide(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.URL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range q.Headers {
		httpReq.Header.Set(k, v)
	}

	client := q.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, ErrDecisionTimeout
		}
		return Response{}, fmt.Errorf("decision endpoint unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	switch httpResp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return Response{}, fmt.Errorf("failed to read response body: %w", err)
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return resp, nil
	case http.StatusAccepted:
		return Response{}, ErrAwaitingInput
	default:
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return Response{}, fmt.Errorf("decision endpoint returned %d: %s",
			httpResp.StatusCode, bytes.TrimSpace(data))
	}
}
