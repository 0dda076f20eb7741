package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/machina-run/machina/machine/decide"
)

// outcomeKind classifies what a path's resolution produced.
type outcomeKind int

const (
	// outcomeNone: no eligible outgoing edge. Terminal nodes complete the
	// path, anything else is a dangling-node failure.
	outcomeNone outcomeKind = iota

	// outcomeAdvance: one or more targets fire.
	outcomeAdvance

	// outcomeFailed: the path fails with outcome.err.
	outcomeFailed

	// outcomePaused: the decision is pending external input; the execution
	// pauses and the path stays active.
	outcomePaused
)

// outcome is the result of resolving one path for one step. Resolution is
// read-only; all effects described here are applied later by the executor's
// serialized commit phase.
type outcome struct {
	path     *Path
	kind     outcomeKind
	terminal bool

	// targets are the node names the path fires to, primary first.
	targets []string

	// label names the fired transition for history entries.
	label string

	// output is the path-carried output recorded in history.
	output string

	// outputs are decision-produced values committed to the shared context
	// under node-qualified keys.
	outputs map[string]string

	// decided reports whether a provider round-trip happened.
	decided bool

	err error
}

// resolve computes a path's next transition without mutating anything.
//
// The algorithm follows the transition contract: enumerate traversable
// outgoing edges, drop edges whose guard is false, then fire deterministically
// when exactly one unambiguous edge remains. Ambiguity (several survivors, or
// a decision node) delegates to the provider; with no provider configured the
// first surviving edge in declaration order fires as the tie-break.
func (e *Execution) resolve(ctx context.Context, p *Path) outcome {
	node, ok := e.model.NodeByName(p.Current)
	if !ok {
		return outcome{path: p, kind: outcomeFailed,
			err: &ExecError{Code: "NODE_NOT_FOUND", Message: "path is at undeclared node " + p.Current}}
	}

	var eligible []Edge
	for _, edge := range e.model.Outgoing(p.Current) {
		if edge.Guard != nil && !edge.Guard.Eval(e.shared) {
			continue
		}
		eligible = append(eligible, edge)
	}

	if len(eligible) == 0 {
		return outcome{path: p, kind: outcomeNone, terminal: node.Terminal()}
	}

	if len(eligible) == 1 && !node.Decision() {
		edge := eligible[0]
		return outcome{
			path:    p,
			kind:    outcomeAdvance,
			targets: append([]string{}, edge.To...),
			label:   edge.name(),
		}
	}

	// Ambiguous or open-ended: delegate.
	if e.provider == nil {
		edge := eligible[0]
		return outcome{
			path:    p,
			kind:    outcomeAdvance,
			targets: append([]string{}, edge.To...),
			label:   edge.name(),
		}
	}
	return e.delegate(ctx, p, node, eligible)
}

// delegate asks the decision provider to pick among the eligible edges and
// produce any declared open-ended outputs.
func (e *Execution) delegate(ctx context.Context, p *Path, node Node, eligible []Edge) outcome {
	options := make([]decide.Option, len(eligible))
	for i, edge := range eligible {
		options[i] = decide.Option{
			Label:   edge.name(),
			Targets: append([]string{}, edge.To...),
		}
	}

	prompt := ""
	if attr, ok := node.Attrs["prompt"]; ok {
		prompt = fmt.Sprintf("%v", e.shared.resolveAttr(attr))
	}

	req := decide.Request{
		RequestID: e.nextRequestID(),
		Machine:   e.model.Name,
		Path:      p.ID,
		Node:      node.Name,
		Options:   options,
		Prompt:    prompt,
		Outputs:   node.Outputs,
	}

	callCtx := ctx
	if e.opts.DecisionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.opts.DecisionTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.provider.Decide(callCtx, req)
	elapsed := time.Since(start)
	if e.opts.Metrics != nil {
		e.opts.Metrics.observeDecision(elapsed, err)
	}

	if err != nil {
		if errors.Is(err, decide.ErrAwaitingInput) {
			return outcome{path: p, kind: outcomePaused, decided: false}
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, decide.ErrDecisionTimeout) {
			return outcome{path: p, kind: outcomeFailed, decided: true,
				err: fmt.Errorf("%w: node %s", decide.ErrDecisionTimeout, node.Name)}
		}
		return outcome{path: p, kind: outcomeFailed, decided: true,
			err: fmt.Errorf("decision failed at node %s: %w", node.Name, err)}
	}

	chosen, err := decide.MatchSelection(req, resp)
	if err != nil {
		return outcome{path: p, kind: outcomeFailed, decided: true,
			err: fmt.Errorf("decision at node %s: %w", node.Name, err)}
	}

	var targets []string
	label := ""
	for _, opt := range chosen {
		if label == "" {
			label = opt.Label
		}
		targets = append(targets, opt.Targets...)
	}
	if len(targets) == 0 {
		// MatchSelection returns a nil selection only for option-less
		// requests: commit the produced outputs and settle the node like any
		// other edge-less one.
		return outcome{path: p, kind: outcomeNone, terminal: node.Terminal(),
			outputs: resp.Outputs, decided: true}
	}

	return outcome{
		path:    p,
		kind:    outcomeAdvance,
		targets: targets,
		label:   label,
		output:  resp.Outputs["output"],
		outputs: resp.Outputs,
		decided: true,
	}
}

func (e *Execution) nextRequestID() string {
	e.reqMu.Lock()
	defer e.reqMu.Unlock()
	e.reqSeq++
	return fmt.Sprintf("%s-%04d", e.id, e.reqSeq)
}
