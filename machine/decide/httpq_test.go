package decide

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPQueueDecide(t *testing.T) {
	t.Run("answered", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %s, want application/json", ct)
			}
			var req Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			if req.Node != "Review" {
				t.Errorf("request node = %s, want Review", req.Node)
			}
			json.NewEncoder(w).Encode(Response{Selected: []string{"approve"}})
		}))
		defer srv.Close()

		resp, err := NewHTTPQueue(srv.URL).Decide(context.Background(), reviewRequest())
		if err != nil {
			t.Fatalf("Decide() error: %v", err)
		}
		if len(resp.Selected) != 1 || resp.Selected[0] != "approve" {
			t.Errorf("response = %v, want approve", resp.Selected)
		}
	})

	t.Run("accepted means pending", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		_, err := NewHTTPQueue(srv.URL).Decide(context.Background(), reviewRequest())
		if !errors.Is(err, ErrAwaitingInput) {
			t.Errorf("Decide() error = %v, want ErrAwaitingInput", err)
		}
	})

	t.Run("error status fails with body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "queue backend offline", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHTTPQueue(srv.URL).Decide(context.Background(), reviewRequest())
		if err == nil || !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "queue backend offline") {
			t.Errorf("Decide() error = %v, want status and body", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		_, err := NewHTTPQueue(srv.URL).Decide(context.Background(), reviewRequest())
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("Decide() error = %v, want ErrMalformedResponse", err)
		}
	})

	t.Run("custom headers", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(Response{Selected: []string{"approve"}})
		}))
		defer srv.Close()

		q := NewHTTPQueue(srv.URL)
		q.Headers = map[string]string{"Authorization": "Bearer token"}
		if _, err := q.Decide(context.Background(), reviewRequest()); err != nil {
			t.Fatalf("Decide() error: %v", err)
		}
		if got != "Bearer token" {
			t.Errorf("Authorization header = %q, want Bearer token", got)
		}
	})
}
