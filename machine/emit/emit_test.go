package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func sampleEvent() Event {
	return Event{
		ExecutionID: "exec-1",
		Step:        4,
		PathID:      "p001",
		NodeID:      "review",
		Msg:         "path_advanced",
		Meta:        map[string]any{"transition": "approve"},
	}
}

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	em := NewLogEmitter(&buf, false)
	em.Emit(sampleEvent())

	line := buf.String()
	for _, want := range []string{
		"[path_advanced]",
		"execution=exec-1",
		"step=4",
		"path=p001",
		"node=review",
		`meta={"transition":"approve"}`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("text line %q missing %q", line, want)
		}
	}

	// Empty optional fields are omitted.
	buf.Reset()
	em.Emit(Event{ExecutionID: "exec-1", Msg: "execution_completed"})
	line = buf.String()
	if strings.Contains(line, "path=") || strings.Contains(line, "node=") || strings.Contains(line, "meta=") {
		t.Errorf("text line %q should omit empty fields", line)
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	em := NewLogEmitter(&buf, true)
	em.Emit(sampleEvent())
	em.Emit(Event{ExecutionID: "exec-1", Step: 5, Msg: "execution_completed"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (one object per line)", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not valid JSON: %v", err)
	}
	if first["execution"] != "exec-1" || first["msg"] != "path_advanced" || first["step"] != float64(4) {
		t.Errorf("line 1 = %v", first)
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2 is not valid JSON: %v", err)
	}
	if _, ok := second["path"]; ok {
		t.Errorf("line 2 should omit the empty path field: %v", second)
	}
}

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{ExecutionID: "e1", Step: 1, PathID: "p001", NodeID: "A", Msg: "path_advanced"})
	b.Emit(Event{ExecutionID: "e1", Step: 2, PathID: "p001", NodeID: "B", Msg: "path_advanced"})
	b.Emit(Event{ExecutionID: "e1", Step: 2, PathID: "p002", NodeID: "J", Msg: "path_waiting"})
	b.Emit(Event{ExecutionID: "e2", Step: 1, PathID: "p001", NodeID: "X", Msg: "path_advanced"})

	if got := b.History("e1"); len(got) != 3 {
		t.Errorf("History(e1) = %d events, want 3", len(got))
	}
	if got := b.History("e2"); len(got) != 1 {
		t.Errorf("History(e2) = %d events, want 1", len(got))
	}
	if got := b.History("unknown"); len(got) != 0 {
		t.Errorf("History(unknown) = %d events, want 0", len(got))
	}

	t.Run("filters", func(t *testing.T) {
		if got := b.HistoryWithFilter("e1", HistoryFilter{PathID: "p002"}); len(got) != 1 || got[0].Msg != "path_waiting" {
			t.Errorf("PathID filter = %v", got)
		}
		if got := b.HistoryWithFilter("e1", HistoryFilter{Msg: "path_advanced"}); len(got) != 2 {
			t.Errorf("Msg filter = %d events, want 2", len(got))
		}
		min, max := 2, 2
		if got := b.HistoryWithFilter("e1", HistoryFilter{MinStep: &min, MaxStep: &max}); len(got) != 2 {
			t.Errorf("step range filter = %d events, want 2", len(got))
		}
		if got := b.HistoryWithFilter("e1", HistoryFilter{NodeID: "B", Msg: "path_waiting"}); len(got) != 0 {
			t.Errorf("combined filters should AND: %v", got)
		}
	})

	t.Run("clear one execution", func(t *testing.T) {
		b.Clear("e1")
		if got := b.History("e1"); len(got) != 0 {
			t.Errorf("History(e1) after Clear = %d events", len(got))
		}
		if got := b.History("e2"); len(got) != 1 {
			t.Errorf("Clear(e1) dropped e2 events too")
		}
	})

	t.Run("clear all", func(t *testing.T) {
		b.Clear("")
		if got := b.History("e2"); len(got) != 0 {
			t.Errorf("History(e2) after Clear(\"\") = %d events", len(got))
		}
	})
}

type countingEmitter struct{ n int }

func (c *countingEmitter) Emit(Event) { c.n++ }

func TestMultiEmitter(t *testing.T) {
	a, b := &countingEmitter{}, &countingEmitter{}
	multi := MultiEmitter{a, NewNullEmitter(), b}
	multi.Emit(sampleEvent())
	multi.Emit(sampleEvent())
	if a.n != 2 || b.n != 2 {
		t.Errorf("fan-out counts = %d/%d, want 2/2", a.n, b.n)
	}
}
