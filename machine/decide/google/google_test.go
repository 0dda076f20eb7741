package google

import (
	"context"
	"errors"
	"testing"

	"github.com/machina-run/machina/machine/decide"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) complete(context.Context, string) (string, error) {
	return f.reply, f.err
}

func TestProviderDecide(t *testing.T) {
	p := &Provider{
		client: &fakeCompleter{reply: `{"selected": "archive"}`},
		model:  DefaultModel,
	}
	resp, err := p.Decide(context.Background(), decide.Request{
		Node:    "Classify",
		Options: []decide.Option{{Label: "archive", Targets: []string{"Archived"}}},
	})
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if len(resp.Selected) != 1 || resp.Selected[0] != "archive" {
		t.Errorf("Selected = %v, want archive", resp.Selected)
	}
	if p.Name() != "google" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestProviderDecideError(t *testing.T) {
	sentinel := errors.New("quota exceeded")
	p := &Provider{client: &fakeCompleter{err: sentinel}, model: DefaultModel}
	if _, err := p.Decide(context.Background(), decide.Request{Node: "Classify"}); !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want wrapped cause", err)
	}
}

func TestClose(t *testing.T) {
	closed := false
	p := &Provider{closer: func() error { closed = true; return nil }}
	if err := p.Close(); err != nil || !closed {
		t.Errorf("Close() = %v, closed = %v", err, closed)
	}
	// A provider without a closer tolerates Close.
	if err := (&Provider{}).Close(); err != nil {
		t.Errorf("Close() on zero provider = %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Error("New() without a key should fail")
	}
}
