package machine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/machina-run/machina/machine/emit"
	"github.com/machina-run/machina/machine/store"
)

// DefaultMaxCheckpoints bounds the in-memory checkpoint table when no
// explicit limit is configured.
const DefaultMaxCheckpoints = 100

// StateStats summarizes the in-memory checkpoint table.
type StateStats struct {
	Count     int
	Oldest    time.Time
	Newest    time.Time
	TotalSize int
}

// StateOption configures a StateManager.
type StateOption func(*StateManager)

// WithMaxCheckpoints bounds the in-memory table. Values below 1 keep the
// default.
func WithMaxCheckpoints(n int) StateOption {
	return func(sm *StateManager) {
		if n > 0 {
			sm.max = n
		}
	}
}

// WithStore mirrors every checkpoint to a durable store. Eviction from the
// bounded in-memory table does not delete the durable copy; Restore falls
// back to the store when the id is no longer resident.
func WithStore(s store.Store) StateOption {
	return func(sm *StateManager) { sm.store = s }
}

// WithStateEmitter routes checkpoint lifecycle events (created, evicted,
// restored, deleted) to the given emitter.
func WithStateEmitter(em emit.Emitter) StateOption {
	return func(sm *StateManager) { sm.emitter = em }
}

// StateManager holds checkpoints in a bounded FIFO table, optionally
// mirrored to a durable store. When the table is full, creating one more
// checkpoint evicts the oldest entry. Safe for concurrent use.
type StateManager struct {
	mu      sync.Mutex
	max     int
	order   []string // insertion order, oldest first
	table   map[string]*Checkpoint
	sizes   map[string]int
	store   store.Store
	emitter emit.Emitter
}

// NewStateManager creates a state manager with the given options.
func NewStateManager(opts ...StateOption) *StateManager {
	sm := &StateManager{
		max:   DefaultMaxCheckpoints,
		table: make(map[string]*Checkpoint),
		sizes: make(map[string]int),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Create snapshots the execution and registers the checkpoint. Returns the
// new checkpoint id.
func (sm *StateManager) Create(e *Execution, description string) (string, error) {
	cp, err := e.Checkpoint(description)
	if err != nil {
		return "", err
	}
	return sm.add(cp)
}

// add registers an already-built checkpoint, evicting the oldest entry if
// the table is full. Used by Create and by entry-annotation auto-snapshots.
func (sm *StateManager) add(cp *Checkpoint) (string, error) {
	data, err := MarshalCheckpoint(cp)
	if err != nil {
		return "", err
	}

	sm.mu.Lock()
	if _, dup := sm.table[cp.ID]; dup {
		sm.mu.Unlock()
		return "", &ExecError{Code: "CHECKPOINT_DUPLICATE", Message: fmt.Sprintf("checkpoint %s already registered", cp.ID)}
	}

	var evicted *Checkpoint
	if len(sm.order) >= sm.max {
		oldest := sm.order[0]
		sm.order = sm.order[1:]
		evicted = sm.table[oldest]
		delete(sm.table, oldest)
		delete(sm.sizes, oldest)
	}
	sm.order = append(sm.order, cp.ID)
	sm.table[cp.ID] = cp
	sm.sizes[cp.ID] = len(data)
	sm.mu.Unlock()

	if evicted != nil {
		sm.emit(evicted, "checkpoint_evicted", map[string]any{"table_max": sm.max})
	}

	if sm.store != nil {
		if err := sm.store.SaveCheckpoint(context.Background(), cp.ID, data); err != nil {
			return cp.ID, &ExecError{Code: "CHECKPOINT_STORE", Message: "durable save failed", Err: err}
		}
	}
	sm.emit(cp, "checkpoint_created", map[string]any{"description": cp.Meta.Description, "bytes": len(data)})
	return cp.ID, nil
}

// Restore returns the checkpoint with the given id, falling back to the
// durable store for entries evicted from the in-memory table. The returned
// checkpoint is a deep copy; callers cannot mutate the stored snapshot.
func (sm *StateManager) Restore(id string) (*Checkpoint, error) {
	sm.mu.Lock()
	cp, ok := sm.table[id]
	sm.mu.Unlock()

	if ok {
		data, err := MarshalCheckpoint(cp)
		if err != nil {
			return nil, err
		}
		copied, err := UnmarshalCheckpoint(data)
		if err != nil {
			return nil, err
		}
		sm.emit(copied, "checkpoint_restored", nil)
		return copied, nil
	}

	if sm.store != nil {
		data, err := sm.store.LoadCheckpoint(context.Background(), id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
		}
		if err != nil {
			return nil, &ExecError{Code: "CHECKPOINT_STORE", Message: "durable load failed", Err: err}
		}
		cp, err := UnmarshalCheckpoint(data)
		if err != nil {
			return nil, err
		}
		sm.emit(cp, "checkpoint_restored", map[string]any{"source": "store"})
		return cp, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
}

// List returns the resident checkpoint ids, oldest first.
func (sm *StateManager) List() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]string{}, sm.order...)
}

// Metadata returns the metadata of a resident checkpoint without copying the
// full snapshot.
func (sm *StateManager) Metadata(id string) (CheckpointMeta, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	cp, ok := sm.table[id]
	if !ok {
		return CheckpointMeta{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	return cp.Meta, nil
}

// Delete removes a checkpoint from the table and, when a store is attached,
// from the durable mirror. An id known to neither returns
// ErrCheckpointNotFound regardless of configuration.
func (sm *StateManager) Delete(id string) error {
	sm.mu.Lock()
	cp, ok := sm.table[id]
	if ok {
		delete(sm.table, id)
		delete(sm.sizes, id)
		for i, v := range sm.order {
			if v == id {
				sm.order = append(sm.order[:i], sm.order[i+1:]...)
				break
			}
		}
	}
	sm.mu.Unlock()

	if sm.store != nil {
		err := sm.store.DeleteCheckpoint(context.Background(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if !ok {
				return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
			}
		case err != nil:
			return &ExecError{Code: "CHECKPOINT_STORE", Message: "durable delete failed", Err: err}
		}
		if cp != nil {
			sm.emit(cp, "checkpoint_deleted", nil)
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	sm.emit(cp, "checkpoint_deleted", nil)
	return nil
}

// Clear drops every resident checkpoint. The durable mirror is untouched.
func (sm *StateManager) Clear() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.order = nil
	sm.table = make(map[string]*Checkpoint)
	sm.sizes = make(map[string]int)
}

// Serialize returns the portable encoded form of a checkpoint.
func (sm *StateManager) Serialize(id string) ([]byte, error) {
	sm.mu.Lock()
	cp, ok := sm.table[id]
	sm.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
	}
	return MarshalCheckpoint(cp)
}

// Deserialize decodes externally produced checkpoint bytes and registers the
// result, subject to the same capacity bound as Create.
func (sm *StateManager) Deserialize(data []byte) (string, error) {
	cp, err := UnmarshalCheckpoint(data)
	if err != nil {
		return "", err
	}
	return sm.add(cp)
}

// Compare diffs two resident checkpoints by id.
func (sm *StateManager) Compare(aID, bID string) (Diff, error) {
	sm.mu.Lock()
	a, aok := sm.table[aID]
	b, bok := sm.table[bID]
	sm.mu.Unlock()
	if !aok {
		return Diff{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, aID)
	}
	if !bok {
		return Diff{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, bID)
	}
	return CompareCheckpoints(a, b), nil
}

// Stats reports table occupancy and the timestamp range of resident
// checkpoints.
func (sm *StateManager) Stats() StateStats {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st := StateStats{Count: len(sm.order)}
	times := make([]time.Time, 0, len(sm.order))
	for _, id := range sm.order {
		times = append(times, sm.table[id].Timestamp)
		st.TotalSize += sm.sizes[id]
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	if len(times) > 0 {
		st.Oldest = times[0]
		st.Newest = times[len(times)-1]
	}
	return st
}

func (sm *StateManager) emit(cp *Checkpoint, msg string, meta map[string]any) {
	if sm.emitter == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["checkpoint_id"] = cp.ID
	meta["machine"] = cp.Machine
	sm.emitter.Emit(emit.Event{
		Step: cp.Meta.StepCount,
		Msg:  msg,
		Meta: meta,
	})
}
