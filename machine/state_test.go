package machine

import (
	"context"
	"errors"
	"testing"

	"github.com/machina-run/machina/machine/emit"
	"github.com/machina-run/machina/machine/store"
)

func newExec(t *testing.T) *Execution {
	t.Helper()
	e, err := New(linearModel(), nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e
}

func TestStateManagerCreateRestore(t *testing.T) {
	sm := NewStateManager()
	e := newExec(t)

	id, err := sm.Create(e, "first")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty id")
	}

	cp, err := sm.Restore(id)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if cp.Meta.Description != "first" {
		t.Errorf("description = %q, want first", cp.Meta.Description)
	}

	// Restore hands out a copy: mutating it must not corrupt the table.
	cp.Paths[0].Current = "tampered"
	again, err := sm.Restore(id)
	if err != nil {
		t.Fatalf("Restore() again error: %v", err)
	}
	if again.Paths[0].Current == "tampered" {
		t.Error("restored checkpoint aliases the stored snapshot")
	}

	if _, err := sm.Restore("nope"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Restore(nope) error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestStateManagerFIFOEviction(t *testing.T) {
	const max = 3
	sm := NewStateManager(WithMaxCheckpoints(max))
	e := newExec(t)

	var ids []string
	for i := 0; i < max+2; i++ {
		id, err := sm.Create(e, "snap")
		if err != nil {
			t.Fatalf("Create() #%d error: %v", i, err)
		}
		ids = append(ids, id)
	}

	list := sm.List()
	if len(list) != max {
		t.Fatalf("len(List()) = %d, want %d", len(list), max)
	}
	// The two oldest are gone, the three newest remain in insertion order.
	for i, id := range ids[2:] {
		if list[i] != id {
			t.Errorf("List()[%d] = %s, want %s", i, list[i], id)
		}
	}
	for _, id := range ids[:2] {
		if _, err := sm.Restore(id); !errors.Is(err, ErrCheckpointNotFound) {
			t.Errorf("Restore(%s) error = %v, want ErrCheckpointNotFound after eviction", id, err)
		}
	}
}

func TestStateManagerStoreFallback(t *testing.T) {
	mem := store.NewMemStore()
	buf := emit.NewBufferedEmitter()
	sm := NewStateManager(WithMaxCheckpoints(1), WithStore(mem), WithStateEmitter(buf))
	e := newExec(t)

	first, err := sm.Create(e, "first")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// Second create evicts the first from memory; the durable copy survives.
	if _, err := sm.Create(e, "second"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if got := sm.List(); len(got) != 1 {
		t.Fatalf("List() = %v, want single resident entry", got)
	}
	cp, err := sm.Restore(first)
	if err != nil {
		t.Fatalf("Restore() from store error: %v", err)
	}
	if cp.Meta.Description != "first" {
		t.Errorf("description = %q, want first", cp.Meta.Description)
	}

	var created, evicted, restored int
	for _, ev := range buf.History("") {
		switch ev.Msg {
		case "checkpoint_created":
			created++
		case "checkpoint_evicted":
			evicted++
		case "checkpoint_restored":
			restored++
		}
	}
	if created != 2 || evicted != 1 || restored != 1 {
		t.Errorf("lifecycle events created/evicted/restored = %d/%d/%d, want 2/1/1",
			created, evicted, restored)
	}
}

func TestStateManagerDelete(t *testing.T) {
	sm := NewStateManager()
	e := newExec(t)
	id, err := sm.Create(e, "doomed")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := sm.Delete(id); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := sm.Restore(id); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Restore() after delete = %v, want ErrCheckpointNotFound", err)
	}
	if err := sm.Delete(id); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("second Delete() = %v, want ErrCheckpointNotFound", err)
	}
}

func TestStateManagerDeleteWithStore(t *testing.T) {
	mem := store.NewMemStore()
	sm := NewStateManager(WithMaxCheckpoints(1), WithStore(mem))
	e := newExec(t)

	first, err := sm.Create(e, "first")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// Second create evicts the first from the table; the store keeps both.
	if _, err := sm.Create(e, "second"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Unknown everywhere: same not-found contract as the store-less manager.
	if err := sm.Delete("nope"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Delete(nope) = %v, want ErrCheckpointNotFound", err)
	}

	// Evicted but durable: the delete removes the store copy.
	if err := sm.Delete(first); err != nil {
		t.Fatalf("Delete(evicted) error: %v", err)
	}
	if _, err := sm.Restore(first); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Restore() after delete = %v, want ErrCheckpointNotFound", err)
	}
	if err := sm.Delete(first); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("second Delete() = %v, want ErrCheckpointNotFound", err)
	}
}

func TestStateManagerSerializeDeserialize(t *testing.T) {
	a := NewStateManager()
	b := NewStateManager()
	e := newExec(t)

	id, err := a.Create(e, "portable")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	data, err := a.Serialize(id)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	got, err := b.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if got != id {
		t.Errorf("Deserialize() id = %s, want %s", got, id)
	}
	meta, err := b.Metadata(id)
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if meta.Description != "portable" {
		t.Errorf("description = %q, want portable", meta.Description)
	}

	// Re-registering the same id is rejected.
	if _, err := b.Deserialize(data); err == nil {
		t.Error("Deserialize() of duplicate id succeeded, want error")
	}
}

func TestStateManagerCompareAndStats(t *testing.T) {
	sm := NewStateManager()
	e := newExec(t)

	a, err := sm.Create(e, "before")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	b, err := sm.Create(e, "after")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	d, err := sm.Compare(a, b)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if d.Empty() || d.StepDifference != 2 {
		t.Errorf("diff = %+v, want step difference 2", d)
	}
	if _, err := sm.Compare(a, "missing"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("Compare() with missing id = %v, want ErrCheckpointNotFound", err)
	}

	st := sm.Stats()
	if st.Count != 2 {
		t.Errorf("Stats().Count = %d, want 2", st.Count)
	}
	if st.TotalSize <= 0 {
		t.Errorf("Stats().TotalSize = %d, want > 0", st.TotalSize)
	}
	if st.Oldest.After(st.Newest) {
		t.Errorf("Stats() oldest %v after newest %v", st.Oldest, st.Newest)
	}
}

func TestAutoCheckpointAnnotation(t *testing.T) {
	m := &Model{
		Name: "auto",
		Nodes: []Node{
			{Name: "A", Kind: KindInit},
			{Name: "B", Kind: KindTask, Annotations: map[string]string{"checkpoint": ""}},
			{Name: "C", Kind: KindResult},
		},
		Edges: []Edge{
			{From: "A", To: []string{"B"}},
			{From: "B", To: []string{"C"}},
		},
	}
	sm := NewStateManager()
	e, err := New(m, nil, WithStates(sm))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	list := sm.List()
	if len(list) != 1 {
		t.Fatalf("auto checkpoints = %d, want 1 (entry into B)", len(list))
	}
	meta, err := sm.Metadata(list[0])
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if meta.Description != "entry:B" {
		t.Errorf("description = %q, want entry:B", meta.Description)
	}
	if meta.StepCount != 1 {
		t.Errorf("auto checkpoint at step %d, want 1", meta.StepCount)
	}
}
