package anthropic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/machina-run/machina/machine/decide"
)

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeCompleter) complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestProviderDecide(t *testing.T) {
	fake := &fakeCompleter{reply: `{"selected": "approve", "outputs": {"reason": "looks good"}}`}
	p := &Provider{client: fake, model: DefaultModel}

	req := decide.Request{
		RequestID: "r1",
		Machine:   "review",
		Node:      "Review",
		Options: []decide.Option{
			{Label: "approve", Targets: []string{"Shipped"}},
			{Label: "reject", Targets: []string{"Rejected"}},
		},
	}
	resp, err := p.Decide(context.Background(), req)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if len(resp.Selected) != 1 || resp.Selected[0] != "approve" {
		t.Errorf("Selected = %v, want approve", resp.Selected)
	}
	if resp.Outputs["reason"] != "looks good" {
		t.Errorf("Outputs = %v", resp.Outputs)
	}
	if !strings.Contains(fake.prompt, `"approve"`) || !strings.Contains(fake.prompt, "Review") {
		t.Errorf("prompt did not carry the request: %s", fake.prompt)
	}
}

func TestProviderDecideErrors(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		sentinel := errors.New("api unreachable")
		p := &Provider{client: &fakeCompleter{err: sentinel}, model: DefaultModel}
		_, err := p.Decide(context.Background(), decide.Request{Node: "Review"})
		if !errors.Is(err, sentinel) {
			t.Errorf("error = %v, want the wrapped transport error", err)
		}
		if !strings.Contains(err.Error(), "Review") {
			t.Errorf("error %q should name the node", err)
		}
	})

	t.Run("unparseable reply", func(t *testing.T) {
		p := &Provider{client: &fakeCompleter{reply: "I would rather not\nsay."}, model: DefaultModel}
		_, err := p.Decide(context.Background(), decide.Request{Node: "Review"})
		if !errors.Is(err, decide.ErrMalformedResponse) {
			t.Errorf("error = %v, want ErrMalformedResponse", err)
		}
	})
}

func TestNewDefaults(t *testing.T) {
	p := New("test-key", "")
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q", p.Name())
	}
}
