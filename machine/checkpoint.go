package machine

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/machina-run/machina/machine/decide"
)

// checkpointFormatVersion guards the serialized checkpoint envelope. Bump on
// incompatible layout changes; Deserialize rejects other versions as corrupt.
const checkpointFormatVersion = 1

// CheckpointMeta is the execution metadata captured with a snapshot.
type CheckpointMeta struct {
	// StepCount is the global step counter at snapshot time.
	StepCount int `json:"step_count"`

	// Turns is the decision round-trip counter at snapshot time.
	Turns int `json:"turns"`

	// Invocations are the per-node visit counters. Restored with the
	// snapshot: counters reset only when a new execution is created.
	Invocations map[string]int `json:"invocations,omitempty"`

	// Status is the execution status at snapshot time.
	Status Status `json:"status"`

	// Description is the caller-supplied label.
	Description string `json:"description,omitempty"`
}

// Checkpoint is an immutable full snapshot of execution state: the machine
// graph, every path, the shared context, and step metadata.
//
// Checkpoints are never mutated after creation. Restoring produces a new
// live execution; two independent restores of the same checkpoint share no
// mutable state.
type Checkpoint struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Machine   string         `json:"machine"`
	Model     *Model         `json:"model"`
	Paths     []Path         `json:"paths"`
	Context   map[string]any `json:"context"`
	Meta      CheckpointMeta `json:"meta"`
}

// checkpointLocked builds a snapshot of the execution. Caller holds e.mu.
func (e *Execution) checkpointLocked(description string) (*Checkpoint, error) {
	ctxCopy, err := e.shared.Snapshot()
	if err != nil {
		return nil, &ExecError{Code: "CHECKPOINT_SNAPSHOT", Message: "context snapshot failed", Err: err}
	}

	paths := make([]Path, len(e.paths))
	for i, p := range e.paths {
		paths[i] = *p
		paths[i].History = append([]Visit{}, p.History...)
	}

	inv := make(map[string]int, len(e.invocations))
	for k, v := range e.invocations {
		inv[k] = v
	}

	return &Checkpoint{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Machine:   e.model.Name,
		Model:     e.model,
		Paths:     paths,
		Context:   ctxCopy,
		Meta: CheckpointMeta{
			StepCount:   e.steps,
			Turns:       e.turns,
			Invocations: inv,
			Status:      e.status,
			Description: description,
		},
	}, nil
}

// Checkpoint snapshots the execution with the given description. The
// snapshot is independent of the live execution: later mutations do not leak
// into it.
func (e *Execution) Checkpoint(description string) (*Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpointLocked(description)
}

// Resume creates a new live execution from a checkpoint. The checkpoint is
// copied, never aliased: the stored snapshot stays untouched, and resuming
// twice yields fully independent executions.
//
// Step and invocation counters continue from the snapshot; they reset only
// when a new execution is created with New.
func Resume(cp *Checkpoint, provider decide.Provider, opts ...Option) (*Execution, error) {
	if cp == nil || cp.Model == nil {
		return nil, &ExecError{Code: "RESUME_NIL", Message: "checkpoint or its model is nil"}
	}

	e := &Execution{
		id:          uuid.NewString(),
		model:       cp.Model,
		shared:      NewContext(),
		provider:    provider,
		barriers:    newBarrierState(cp.Model),
		invocations: make(map[string]int),
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(&e.opts)
	}

	if err := e.shared.restore(cp.Context); err != nil {
		return nil, &ExecError{Code: "RESUME_CONTEXT", Message: "context restore failed", Err: err}
	}

	// Deep-copy paths through JSON so the checkpoint's slices are not shared.
	data, err := json.Marshal(cp.Paths)
	if err != nil {
		return nil, &ExecError{Code: "RESUME_PATHS", Message: "path copy failed", Err: err}
	}
	var paths []Path
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, &ExecError{Code: "RESUME_PATHS", Message: "path copy failed", Err: err}
	}
	e.paths = make([]*Path, len(paths))
	maxSeq := 0
	for i := range paths {
		e.paths[i] = &paths[i]
		var n int
		if _, err := fmt.Sscanf(paths[i].ID, "p%d", &n); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	e.pathSeq = maxSeq

	for k, v := range cp.Meta.Invocations {
		e.invocations[k] = v
	}
	e.steps = cp.Meta.StepCount
	e.turns = cp.Meta.Turns
	e.barriers.rebuild(e.paths)

	// Resumed snapshots of finished executions stay finished; anything else
	// is ready to run.
	switch cp.Meta.Status {
	case StatusCompleted, StatusFailed:
		e.status = cp.Meta.Status
	default:
		e.status = StatusRunning
	}
	e.updateGauges()
	return e, nil
}

// checkpointEnvelope is the versioned serialized form.
type checkpointEnvelope struct {
	Version    int         `json:"version"`
	Checkpoint *Checkpoint `json:"checkpoint"`
}

// MarshalCheckpoint serializes a checkpoint to its self-describing JSON
// envelope. The format round-trips exactly under value equality and is
// stable for cross-process exchange.
func MarshalCheckpoint(cp *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(checkpointEnvelope{
		Version:    checkpointFormatVersion,
		Checkpoint: cp,
	})
	if err != nil {
		return nil, &ExecError{Code: "CHECKPOINT_MARSHAL", Message: "serialization failed", Err: err}
	}
	return data, nil
}

// UnmarshalCheckpoint decodes serialized checkpoint bytes. Corrupt payloads
// and version mismatches return ErrCorruptCheckpoint, distinct from
// not-found conditions.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	var env checkpointEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}
	if env.Version != checkpointFormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d",
			ErrCorruptCheckpoint, env.Version, checkpointFormatVersion)
	}
	if env.Checkpoint == nil || env.Checkpoint.ID == "" {
		return nil, fmt.Errorf("%w: empty checkpoint", ErrCorruptCheckpoint)
	}
	return env.Checkpoint, nil
}

// Diff is a value-level comparison of two checkpoints: human-readable
// summaries, not a reversible patch format.
type Diff struct {
	// PathChanges describes per-path differences (status, position, history
	// length, presence).
	PathChanges []string

	// ContextChanges describes added, removed, and changed context keys.
	ContextChanges []string

	// StepDifference is b's step count minus a's.
	StepDifference int
}

// Empty reports whether the two checkpoints compared equal.
func (d Diff) Empty() bool {
	return len(d.PathChanges) == 0 && len(d.ContextChanges) == 0 && d.StepDifference == 0
}

// CompareCheckpoints computes the value-level diff from a to b.
func CompareCheckpoints(a, b *Checkpoint) Diff {
	var d Diff
	d.StepDifference = b.Meta.StepCount - a.Meta.StepCount

	byID := func(paths []Path) map[string]Path {
		m := make(map[string]Path, len(paths))
		for _, p := range paths {
			m[p.ID] = p
		}
		return m
	}
	aPaths, bPaths := byID(a.Paths), byID(b.Paths)

	for _, p := range a.Paths {
		q, ok := bPaths[p.ID]
		if !ok {
			d.PathChanges = append(d.PathChanges, fmt.Sprintf("path %s removed", p.ID))
			continue
		}
		if p.Status != q.Status {
			d.PathChanges = append(d.PathChanges,
				fmt.Sprintf("path %s status %s -> %s", p.ID, p.Status, q.Status))
		}
		if p.Current != q.Current {
			d.PathChanges = append(d.PathChanges,
				fmt.Sprintf("path %s moved %s -> %s", p.ID, p.Current, q.Current))
		}
		if len(p.History) != len(q.History) {
			d.PathChanges = append(d.PathChanges,
				fmt.Sprintf("path %s history %d -> %d visits", p.ID, len(p.History), len(q.History)))
		}
	}
	for _, q := range b.Paths {
		if _, ok := aPaths[q.ID]; !ok {
			d.PathChanges = append(d.PathChanges,
				fmt.Sprintf("path %s added at %s", q.ID, q.Current))
		}
	}

	keys := make(map[string]bool, len(a.Context)+len(b.Context))
	for k := range a.Context {
		keys[k] = true
	}
	for k := range b.Context {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		av, aok := a.Context[k]
		bv, bok := b.Context[k]
		switch {
		case aok && !bok:
			d.ContextChanges = append(d.ContextChanges, fmt.Sprintf("%s removed (was %v)", k, av))
		case !aok && bok:
			d.ContextChanges = append(d.ContextChanges, fmt.Sprintf("%s added = %v", k, bv))
		case fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv):
			d.ContextChanges = append(d.ContextChanges, fmt.Sprintf("%s changed %v -> %v", k, av, bv))
		}
	}
	return d
}
