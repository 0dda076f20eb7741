// Package decide defines the decision-provider boundary: the external actor
// that resolves ambiguous transitions and open-ended node outputs.
//
// A Provider may be backed by a live language model (see the anthropic,
// openai, and google subpackages), a file or HTTP queue polled by an
// interactive operator, or a positional recording replayed for deterministic,
// cost-free test runs. The Recorder and Playback types wrap any Provider to
// capture and substitute decisions transparently.
package decide

import (
	"context"
	"errors"
)

// ErrDecisionTimeout is returned when a provider call does not complete
// within the caller-supplied timeout. The executor treats it as a per-path
// failure, not a whole-execution failure.
var ErrDecisionTimeout = errors.New("decision provider timed out")

// ErrAwaitingInput signals that the decision is pending external input (an
// operator has not answered yet). The executor pauses the execution instead
// of failing the path.
var ErrAwaitingInput = errors.New("decision awaiting external input")

// ErrRecordingExhausted is returned by strict playback when the session has
// no unconsumed recording left for the request.
var ErrRecordingExhausted = errors.New("recording exhausted: no recorded response for request")

// ErrMalformedResponse is returned when a provider answer cannot be mapped
// onto the offered options.
var ErrMalformedResponse = errors.New("decision response did not match any offered option")

// Option is one candidate transition presented to the provider.
type Option struct {
	// Label names the option; it is the edge label or, for unlabeled edges,
	// the first target node.
	Label string `json:"label"`

	// Targets lists the node names the option fires to.
	Targets []string `json:"targets"`
}

// Request is the question put to a provider: which of the candidate edges
// should fire, and what open-ended outputs the node should produce.
type Request struct {
	// RequestID uniquely identifies this decision within a session.
	RequestID string `json:"request_id"`

	// Machine, Path, and Node locate the decision in the execution.
	Machine string `json:"machine"`
	Path    string `json:"path"`
	Node    string `json:"node"`

	// Options are the candidate edges, in declaration order.
	Options []Option `json:"options"`

	// Prompt is the node-declared prompt context, with templates resolved.
	Prompt string `json:"prompt,omitempty"`

	// Outputs names the open-ended outputs the node may produce.
	Outputs []string `json:"outputs,omitempty"`
}

// Response is a provider's answer.
type Response struct {
	// Selected lists the labels of the chosen options. Several labels mean
	// fan-out: one continuing path per extra selection. Empty with Outputs
	// set is valid for pure open-ended nodes.
	Selected []string `json:"selected"`

	// Outputs maps output names to produced values.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Provider resolves decisions. Decide blocks until the decision is made, the
// context is done, or the backing channel fails; it is the only suspension
// point in the whole engine.
type Provider interface {
	Decide(ctx context.Context, req Request) (Response, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

// Decide implements Provider.
func (f ProviderFunc) Decide(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// MatchSelection maps a response's selected labels back onto the offered
// options, tolerating answers that name a target node instead of a label.
// Returns ErrMalformedResponse when any selection matches nothing, or when
// options were offered and the response selects none of them. An empty
// selection is valid only for pure open-ended requests with no options.
func MatchSelection(req Request, resp Response) ([]Option, error) {
	if len(resp.Selected) == 0 {
		if len(req.Options) == 0 {
			return nil, nil
		}
		return nil, ErrMalformedResponse
	}
	var chosen []Option
	for _, sel := range resp.Selected {
		found := false
		for _, opt := range req.Options {
			if opt.Label == sel {
				chosen = append(chosen, opt)
				found = true
				break
			}
			for _, tgt := range opt.Targets {
				if tgt == sel {
					chosen = append(chosen, opt)
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return nil, ErrMalformedResponse
		}
	}
	return chosen, nil
}
