package machine

import "testing"

func hasIssue(issues []Issue, code, node string) bool {
	for _, i := range issues {
		if i.Code == code && i.Node == node {
			return true
		}
	}
	return false
}

func TestValidateStructure(t *testing.T) {
	t.Run("valid model passes", func(t *testing.T) {
		m := &Model{
			Name: "ok",
			Nodes: []Node{
				{Name: "start", Kind: KindInit},
				{Name: "work"},
				{Name: "done", Kind: KindResult},
			},
			Edges: []Edge{
				{From: "start", To: []string{"work"}},
				{From: "work", To: []string{"done"}},
			},
		}
		res := Validate(m)
		if !res.OK() {
			t.Fatalf("expected OK, got errors %v", res.Errors)
		}
		if len(res.Warnings) != 0 {
			t.Errorf("unexpected warnings: %v", res.Warnings)
		}
	})

	t.Run("dangling edge is an error", func(t *testing.T) {
		m := &Model{
			Name:  "bad",
			Nodes: []Node{{Name: "a", Kind: KindInit}},
			Edges: []Edge{{From: "a", To: []string{"ghost"}}},
		}
		res := Validate(m)
		if res.OK() {
			t.Fatal("expected validation failure")
		}
		if !hasIssue(res.Errors, "dangling-edge", "ghost") {
			t.Errorf("missing dangling-edge for ghost; errors: %v", res.Errors)
		}
	})

	t.Run("no entry point is an error", func(t *testing.T) {
		m := &Model{
			Name:  "noentry",
			Nodes: []Node{{Name: "a"}, {Name: "b"}},
			Edges: []Edge{{From: "a", To: []string{"b"}}},
		}
		res := Validate(m)
		if !hasIssue(res.Errors, "no-entry", "") {
			t.Errorf("missing no-entry error; errors: %v", res.Errors)
		}
	})

	t.Run("unreachable and orphan are warnings", func(t *testing.T) {
		m := &Model{
			Name: "warns",
			Nodes: []Node{
				{Name: "start", Kind: KindInit},
				{Name: "island"},  // connected but unreachable
				{Name: "island2"}, // target of island's edge
				{Name: "alone"},   // no edges at all
			},
			Edges: []Edge{
				{From: "island", To: []string{"island2"}},
			},
		}
		res := Validate(m)
		if !res.OK() {
			t.Fatalf("warnings should not block: %v", res.Errors)
		}
		if !hasIssue(res.Warnings, "unreachable", "island") {
			t.Errorf("missing unreachable for island; warnings: %v", res.Warnings)
		}
		if !hasIssue(res.Warnings, "orphan", "alone") {
			t.Errorf("missing orphan for alone; warnings: %v", res.Warnings)
		}
	})

	t.Run("cycle reported once", func(t *testing.T) {
		m := &Model{
			Name: "loop",
			Nodes: []Node{
				{Name: "a", Kind: KindInit},
				{Name: "b"},
				{Name: "c"},
			},
			Edges: []Edge{
				{From: "a", To: []string{"b"}},
				{From: "b", To: []string{"c"}},
				{From: "c", To: []string{"b"}},
			},
		}
		res := Validate(m)
		count := 0
		for _, w := range res.Warnings {
			if w.Code == "cycle" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("cycle warnings = %d, want 1; warnings: %v", count, res.Warnings)
		}
	})
}

func TestValidateAttrs(t *testing.T) {
	tests := []struct {
		name     string
		attr     AttrValue
		wantCode string // empty means valid
	}{
		{"string ok", AttrValue{Type: AttrString, Raw: "x"}, ""},
		{"string holds number", AttrValue{Type: AttrString, Raw: 3}, "attr-type"},
		{"number accepts int", AttrValue{Type: AttrNumber, Raw: 3}, ""},
		{"number accepts float", AttrValue{Type: AttrNumber, Raw: 3.5}, ""},
		{"number holds bool", AttrValue{Type: AttrNumber, Raw: true}, "attr-type"},
		{"bool ok", AttrValue{Type: AttrBool, Raw: false}, ""},
		{"list ok", AttrValue{Type: AttrList, Raw: []any{1, 2}}, ""},
		{"list holds string", AttrValue{Type: AttrList, Raw: "not-a-list"}, "attr-type"},
		{"untyped accepts anything", AttrValue{Raw: struct{}{}}, ""},
		{"optional absent ok", AttrValue{Type: AttrString, Optional: true}, ""},
		{"required absent fails", AttrValue{Type: AttrString}, "attr-missing"},
		{"template deferred", AttrValue{Type: AttrNumber, Template: "{{x}}"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Model{
				Name:  "attrs",
				Nodes: []Node{{Name: "n", Kind: KindInit, Attrs: map[string]AttrValue{"v": tt.attr}}},
			}
			res := Validate(m)
			if tt.wantCode == "" {
				for _, e := range res.Errors {
					if e.Code == "attr-type" || e.Code == "attr-missing" {
						t.Fatalf("unexpected attr error: %v", e)
					}
				}
				return
			}
			if !hasIssue(res.Errors, tt.wantCode, "n") {
				t.Errorf("missing %s error; errors: %v", tt.wantCode, res.Errors)
			}
		})
	}
}
