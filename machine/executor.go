package machine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/machina-run/machina/machine/decide"
	"github.com/machina-run/machina/machine/emit"
)

// Status is the lifecycle state of a whole execution.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"

	// StatusPaused means a decision is pending external input. Calling Step
	// again retries the pending resolutions.
	StatusPaused Status = "paused"
)

// Execution advances one or more concurrent paths through a machine graph.
//
// Scheduling is logically single-threaded and cooperative: paths are resolved
// one after another in ascending path-id order within each step (resolution
// is read-only), then all effects are committed serially through a single
// mutation point. Sequential resolution keeps decision-provider calls in a
// deterministic order, which positional recording playback depends on.
//
// An Execution is safe for concurrent use of its public methods, but there is
// exactly one authoritative step loop per execution; interleaving Step calls
// from several goroutines serializes them.
type Execution struct {
	mu sync.Mutex

	id     string
	model  *Model
	shared *Context
	paths  []*Path

	provider decide.Provider
	opts     Options
	barriers *barrierState

	status  Status
	execErr error

	steps       int
	turns       int
	invocations map[string]int
	pathSeq     int
	rr          int
	started     time.Time

	reqMu  sync.Mutex
	reqSeq int

	// decisionsLast counts provider round-trips in the most recent step.
	decisionsLast int
}

// New validates the model and creates an execution with one active path per
// declared entry point. The validation gate refuses to start on any error;
// warnings are advisory and available via Validate.
func New(model *Model, provider decide.Provider, opts ...Option) (*Execution, error) {
	res := Validate(model)
	if !res.OK() {
		msgs := make([]string, len(res.Errors))
		for i, issue := range res.Errors {
			msgs[i] = issue.String()
		}
		return nil, &ExecError{
			Code:    "VALIDATION_FAILED",
			Message: strings.Join(msgs, "; "),
			Err:     ErrValidationFailed,
		}
	}

	e := &Execution{
		id:          uuid.NewString(),
		model:       model,
		shared:      NewContext(),
		provider:    provider,
		barriers:    newBarrierState(model),
		status:      StatusInitializing,
		invocations: make(map[string]int),
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(&e.opts)
	}

	for _, entry := range model.entries() {
		p := e.spawnPath()
		p.visit(entry, "", "", time.Now())
		e.invocations[entry]++
		e.applyEffects(entry)
	}
	e.updateGauges()
	return e, nil
}

// ID returns the unique execution identifier.
func (e *Execution) ID() string { return e.id }

// Model returns the read-only machine graph this execution runs.
func (e *Execution) Model() *Model { return e.model }

// Status returns the execution lifecycle state.
func (e *Execution) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Err returns the execution-level error, if the execution failed.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execErr
}

// Steps returns the global step counter.
func (e *Execution) Steps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// Turns returns how many steps included at least one completed
// decision-provider round-trip.
func (e *Execution) Turns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turns
}

// Paths returns a copy of every path, creation order first.
func (e *Execution) Paths() []Path {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Path, len(e.paths))
	for i, p := range e.paths {
		out[i] = *p
		out[i].History = append([]Visit{}, p.History...)
	}
	return out
}

// Path returns a copy of the path with the given id.
func (e *Execution) Path(id string) (Path, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.paths {
		if p.ID == id {
			cp := *p
			cp.History = append([]Visit{}, p.History...)
			return cp, true
		}
	}
	return Path{}, false
}

// ContextValue reads one key from the shared execution context.
func (e *Execution) ContextValue(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shared.Get(key)
}

// ContextSnapshot returns a deep copy of the shared execution context.
func (e *Execution) ContextSnapshot() (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shared.Snapshot()
}

// Step advances every currently active path by exactly one transition and
// increments the step counter by one, regardless of how many paths moved.
//
// All active paths are resolved first (read-only, logically simultaneous: no
// resolution observes another path's in-flight mutation), then outcomes are
// committed in ascending path-id order through the single mutation point.
func (e *Execution) Step(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step(ctx)
}

// StepTurn advances execution until one full decision round-trip completes
// for at least one path, or until the execution stops advancing. Machines
// with no pending decisions run to completion.
func (e *Execution) StepTurn(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if err := e.step(ctx); err != nil {
			return err
		}
		if e.decisionsLast > 0 || e.status != StatusRunning {
			return nil
		}
	}
}

// StepPath advances exactly one path, chosen round-robin among active paths,
// by exactly one transition. All other paths are untouched. The step counter
// still advances: limits apply uniformly however the machine is driven.
func (e *Execution) StepPath(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusCompleted || e.status == StatusFailed {
		return ErrExecutionDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	active := e.activePaths()
	if len(active) == 0 && !e.barriers.anyReady() {
		e.finalize()
		return e.execErr
	}
	if err := e.checkStepBudget(); err != nil {
		return err
	}
	e.status = StatusRunning
	e.steps++
	e.countStep()

	e.releaseBarriers(time.Now())
	if e.status == StatusFailed {
		return e.execErr
	}

	e.decisionsLast = 0
	if len(active) > 0 {
		p := active[e.rr%len(active)]
		e.rr++

		o := e.resolve(ctx, p)
		if o.decided {
			e.decisionsLast = 1
			e.turns++
		}
		e.commit(o)
	}
	e.finalize()
	return e.execErr
}

// Run repeatedly steps until every path is completed or failed, the
// execution pauses pending external input, or a limit is hit.
//
// The three exit conditions are distinguishable afterwards via Status:
// StatusCompleted (nil error), StatusFailed (the returned error), and
// StatusPaused (nil error, resumable).
func (e *Execution) Run(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if err := e.step(ctx); err != nil {
			return err
		}
		if e.status != StatusRunning {
			return nil
		}
	}
}

// step is the unlocked core of Step.
func (e *Execution) step(ctx context.Context) error {
	if e.status == StatusCompleted || e.status == StatusFailed {
		return ErrExecutionDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	active := e.activePaths()
	if len(active) == 0 && !e.barriers.anyReady() {
		e.finalize()
		return e.execErr
	}
	if err := e.checkStepBudget(); err != nil {
		return err
	}
	e.status = StatusRunning
	e.steps++
	e.countStep()

	// Coordination phase: barriers whose arrival count was met by earlier
	// steps release now. The merged survivor consumed this step's
	// transition and is not resolved again below (the active snapshot
	// predates the release).
	e.releaseBarriers(time.Now())
	if e.status == StatusFailed {
		return e.execErr
	}

	// Resolution phase: read-only, deterministic path order.
	outcomes := make([]outcome, 0, len(active))
	decisions := 0
	for _, p := range active {
		o := e.resolve(ctx, p)
		if o.decided {
			decisions++
		}
		outcomes = append(outcomes, o)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	e.decisionsLast = decisions
	if decisions > 0 {
		e.turns++
	}

	// Commit phase: single mutation point, ascending path id.
	for _, o := range outcomes {
		e.commit(o)
		if e.status == StatusFailed {
			break
		}
	}
	e.finalize()
	return e.execErr
}

// checkStepBudget enforces MaxSteps before an advancement. Running out of
// steps while paths are still parked at a barrier is a barrier stall: the
// expected arrivals can no longer occur.
func (e *Execution) checkStepBudget() error {
	if e.opts.MaxSteps == 0 || e.steps+1 <= e.opts.MaxSteps {
		return nil
	}
	if nodes := e.barriers.waitingNodes(); len(nodes) > 0 {
		e.failExecution(&ExecError{
			Code: "STALLED_BARRIER",
			Message: fmt.Sprintf("step budget of %d exhausted with paths parked at %v",
				e.opts.MaxSteps, nodes),
			Err: errors.Join(ErrStalledBarrier, ErrMaxStepsExceeded),
		})
		return e.execErr
	}
	e.failExecution(&ExecError{
		Code:    "MAX_STEPS_EXCEEDED",
		Message: fmt.Sprintf("step budget of %d exhausted", e.opts.MaxSteps),
		Err:     ErrMaxStepsExceeded,
	})
	return e.execErr
}

// commit applies one outcome through the single mutation point.
func (e *Execution) commit(o outcome) {
	switch o.kind {
	case outcomePaused:
		e.status = StatusPaused
		e.emit(o.path.ID, o.path.Current, "decision_pending", nil)

	case outcomeFailed:
		o.path.fail(o.err)
		e.countPathFailure()
		e.emit(o.path.ID, o.path.Current, "path_failed", map[string]any{"error": o.err.Error()})

	case outcomeNone:
		e.commitOutputs(o.path.Current, o.outputs)
		if o.terminal {
			o.path.Status = PathCompleted
			e.emit(o.path.ID, o.path.Current, "path_completed", nil)
			return
		}
		err := fmt.Errorf("%w: node %s", ErrDanglingNode, o.path.Current)
		o.path.fail(err)
		e.countPathFailure()
		e.emit(o.path.ID, o.path.Current, "path_failed", map[string]any{"error": err.Error()})

	case outcomeAdvance:
		e.commitOutputs(o.path.Current, o.outputs)
		now := time.Now()
		e.enter(o.path, o.targets[0], o.label, o.output, now)
		for _, extra := range o.targets[1:] {
			if e.status == StatusFailed {
				return
			}
			np := e.spawnPath()
			e.emit(np.ID, extra, "path_forked", map[string]any{"from": o.path.ID})
			e.enter(np, extra, o.label, o.output, now)
		}
	}
}

// enter moves a path onto target, handling barriers, invocation ceilings,
// node effects, and checkpoint annotations.
func (e *Execution) enter(p *Path, target, label, output string, now time.Time) {
	if e.barriers.isBarrier(target) {
		p.visit(target, label, output, now)
		e.barriers.arrive(target, p.ID, output)
		p.Status = PathWaiting
		e.emit(p.ID, target, "path_waiting", map[string]any{
			"expected": e.barriers.expected(target),
		})
		return
	}

	if !e.countInvocation(target) {
		return
	}
	p.visit(target, label, output, now)
	p.Status = PathActive
	e.applyEffects(target)
	e.emit(p.ID, target, "path_advanced", map[string]any{"transition": label})
	e.maybeAutoCheckpoint(target)
	e.settleEntry(p, target)
}

// settleEntry completes or fails a path that entered a node with no declared
// outgoing transitions, within the same step as the entering transition.
// Nodes whose edges are all guarded false stay active; guards are
// re-evaluated at the next resolution.
func (e *Execution) settleEntry(p *Path, target string) {
	if len(e.model.Outgoing(target)) > 0 {
		return
	}
	n, ok := e.model.NodeByName(target)
	if ok && n.Terminal() {
		p.Status = PathCompleted
		e.emit(p.ID, target, "path_completed", nil)
		return
	}
	err := fmt.Errorf("%w: node %s", ErrDanglingNode, target)
	p.fail(err)
	e.countPathFailure()
	e.emit(p.ID, target, "path_failed", map[string]any{"error": err.Error()})
}

// releaseBarriers merges every barrier whose expected arrival count has been
// met, in sorted node order.
func (e *Execution) releaseBarriers(now time.Time) {
	for _, node := range e.barriers.ready() {
		e.mergeBarrier(node, e.barriers.take(node), now)
		if e.status == StatusFailed {
			return
		}
	}
}

// mergeBarrier releases a barrier: the lowest-id arrival survives as the
// single merged continuation, the rest are recorded as absorbed.
func (e *Execution) mergeBarrier(target string, arrivals []arrival, now time.Time) {
	if !e.countInvocation(target) {
		return
	}
	surv := survivor(arrivals)
	for _, a := range arrivals {
		p := e.pathByID(a.pathID)
		if p == nil {
			continue
		}
		if p.ID == surv {
			p.Status = PathActive
			continue
		}
		p.Status = PathCompleted
		p.MergedInto = surv
		p.History = append(p.History, Visit{
			Node:       target,
			Timestamp:  now,
			Transition: "absorbed:" + surv,
			Output:     a.output,
		})
	}
	e.applyEffects(target)
	e.countBarrierMerge()
	e.emit(surv, target, "barrier_merged", map[string]any{
		"arrivals": len(arrivals),
	})
	e.maybeAutoCheckpoint(target)
	if sp := e.pathByID(surv); sp != nil {
		e.settleEntry(sp, target)
	}
}

// countInvocation enforces MaxNodeInvocations and bumps the counter. It
// returns false after failing the execution. As with the step budget,
// exhausting the ceiling while paths are parked at a barrier is reported as
// a stall.
func (e *Execution) countInvocation(node string) bool {
	if e.opts.MaxNodeInvocations > 0 && e.invocations[node]+1 > e.opts.MaxNodeInvocations {
		execErr := &ExecError{
			Code:    "MAX_INVOCATIONS_EXCEEDED",
			Message: fmt.Sprintf("node %s invoked more than %d times", node, e.opts.MaxNodeInvocations),
			Err:     ErrMaxInvocationsExceeded,
		}
		if nodes := e.barriers.waitingNodes(); len(nodes) > 0 {
			execErr.Code = "STALLED_BARRIER"
			execErr.Message += fmt.Sprintf("; paths parked at %v", nodes)
			execErr.Err = errors.Join(ErrStalledBarrier, ErrMaxInvocationsExceeded)
		}
		e.failExecution(execErr)
		return false
	}
	e.invocations[node]++
	return true
}

// applyEffects commits the context mutations declared on a node.
func (e *Execution) applyEffects(node string) {
	n, ok := e.model.NodeByName(node)
	if !ok {
		return
	}
	for _, eff := range n.Effects {
		e.shared.Set(eff.Key, e.shared.resolveAttr(eff.Value))
	}
}

func (e *Execution) commitOutputs(node string, outputs map[string]string) {
	for _, key := range sortedKeys(outputs) {
		e.shared.Set(node+"."+key, outputs[key])
	}
}

func (e *Execution) maybeAutoCheckpoint(node string) {
	if e.opts.States == nil {
		return
	}
	n, ok := e.model.NodeByName(node)
	if !ok || !n.Annotated("checkpoint") {
		return
	}
	cp, err := e.checkpointLocked("entry:" + node)
	if err != nil {
		e.emit("", node, "checkpoint_failed", map[string]any{"error": err.Error()})
		return
	}
	id, err := e.opts.States.add(cp)
	if err != nil {
		e.emit("", node, "checkpoint_failed", map[string]any{"error": err.Error()})
		return
	}
	e.emit("", node, "checkpoint_created", map[string]any{"checkpoint_id": id})
}

// finalize settles the execution status once no outcome is in flight.
func (e *Execution) finalize() {
	defer e.updateGauges()

	if e.status == StatusPaused || e.status == StatusFailed {
		return
	}

	var active, waiting, completed int
	for _, p := range e.paths {
		switch p.Status {
		case PathActive:
			active++
		case PathWaiting:
			waiting++
		case PathCompleted:
			completed++
		}
	}
	if active > 0 {
		return
	}
	if waiting > 0 {
		// A barrier whose count is already met releases on the next step.
		if e.barriers.anyReady() {
			return
		}
		e.failExecution(&ExecError{
			Code: "STALLED_BARRIER",
			Message: fmt.Sprintf("paths waiting at %v with no active path left to arrive",
				e.barriers.waitingNodes()),
			Err: ErrStalledBarrier,
		})
		return
	}
	if completed > 0 {
		e.status = StatusCompleted
		e.emit("", "", "execution_completed", map[string]any{"steps": e.steps})
		return
	}
	e.failExecution(&ExecError{
		Code:    "ALL_PATHS_FAILED",
		Message: "every path failed",
	})
}

func (e *Execution) failExecution(err error) {
	e.status = StatusFailed
	e.execErr = err
	e.emit("", "", "execution_failed", map[string]any{"error": err.Error()})
}

func (e *Execution) spawnPath() *Path {
	e.pathSeq++
	p := &Path{ID: pathID(e.pathSeq), Status: PathActive}
	e.paths = append(e.paths, p)
	return p
}

func (e *Execution) pathByID(id string) *Path {
	for _, p := range e.paths {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (e *Execution) activePaths() []*Path {
	var out []*Path
	for _, p := range e.paths {
		if p.Status == PathActive {
			out = append(out, p)
		}
	}
	return out
}

func (e *Execution) emit(pathID, nodeID, msg string, meta map[string]any) {
	if e.opts.Emitter == nil {
		return
	}
	e.opts.Emitter.Emit(emit.Event{
		ExecutionID: e.id,
		Step:        e.steps,
		PathID:      pathID,
		NodeID:      nodeID,
		Msg:         msg,
		Meta:        meta,
	})
}

func (e *Execution) countStep() {
	if e.opts.Metrics != nil {
		e.opts.Metrics.countStep()
	}
}

func (e *Execution) countPathFailure() {
	if e.opts.Metrics != nil {
		e.opts.Metrics.countPathFailure()
	}
}

func (e *Execution) countBarrierMerge() {
	if e.opts.Metrics != nil {
		e.opts.Metrics.countBarrierMerge()
	}
}

func (e *Execution) updateGauges() {
	if e.opts.Metrics == nil {
		return
	}
	var active, waiting int
	for _, p := range e.paths {
		switch p.Status {
		case PathActive:
			active++
		case PathWaiting:
			waiting++
		}
	}
	e.opts.Metrics.setPathGauges(active, waiting)
}

// sortedKeys keeps context commits deterministic regardless of map order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
