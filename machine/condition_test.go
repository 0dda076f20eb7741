package machine

import "testing"

func condCtx(values map[string]any) *Context {
	ctx := NewContext()
	for k, v := range values {
		ctx.Set(k, v)
	}
	return ctx
}

func TestConditionEval(t *testing.T) {
	ctx := condCtx(map[string]any{
		"order.total":  42.0,
		"order.status": "approved",
		"order.tags":   []any{"rush", "export"},
		"retries":      0,
	})

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"empty condition is true", Condition{}, true},
		{"eq string", Condition{Key: "order.status", Op: OpEq, Value: "approved"}, true},
		{"eq mismatch", Condition{Key: "order.status", Op: OpEq, Value: "rejected"}, false},
		{"eq number normalizes int vs float", Condition{Key: "order.total", Op: OpEq, Value: 42}, true},
		{"ne", Condition{Key: "order.status", Op: OpNe, Value: "rejected"}, true},
		{"ne on missing key", Condition{Key: "missing", Op: OpNe, Value: "x"}, true},
		{"gt", Condition{Key: "order.total", Op: OpGt, Value: 40}, true},
		{"lt false", Condition{Key: "order.total", Op: OpLt, Value: 40}, false},
		{"gte boundary", Condition{Key: "order.total", Op: OpGte, Value: 42}, true},
		{"lte boundary", Condition{Key: "order.total", Op: OpLte, Value: 42}, true},
		{"numeric op on missing key", Condition{Key: "missing", Op: OpGt, Value: 1}, false},
		{"exists", Condition{Key: "order.total", Op: OpExists}, true},
		{"absent", Condition{Key: "missing", Op: OpAbsent}, true},
		{"absent on present key", Condition{Key: "order.total", Op: OpAbsent}, false},
		{"contains string", Condition{Key: "order.status", Op: OpContains, Value: "rov"}, true},
		{"contains list", Condition{Key: "order.tags", Op: OpContains, Value: "rush"}, true},
		{"contains list miss", Condition{Key: "order.tags", Op: OpContains, Value: "bulk"}, false},
		{"truthy default op", Condition{Key: "order.status"}, true},
		{"truthy zero number", Condition{Key: "retries"}, false},
		{"all", Condition{All: []Condition{
			{Key: "order.total", Op: OpGt, Value: 10},
			{Key: "order.status", Op: OpEq, Value: "approved"},
		}}, true},
		{"all short-circuits false", Condition{All: []Condition{
			{Key: "order.total", Op: OpGt, Value: 100},
			{Key: "order.status", Op: OpEq, Value: "approved"},
		}}, false},
		{"any", Condition{Any: []Condition{
			{Key: "order.total", Op: OpGt, Value: 100},
			{Key: "order.status", Op: OpEq, Value: "approved"},
		}}, true},
		{"any all false", Condition{Any: []Condition{
			{Key: "order.total", Op: OpGt, Value: 100},
			{Key: "order.status", Op: OpEq, Value: "rejected"},
		}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Eval(ctx); got != tt.want {
				t.Errorf("Eval() = %v, want %v (condition %s)", got, tt.want, tt.cond)
			}
		})
	}
}

func TestConditionString(t *testing.T) {
	tests := []struct {
		cond Condition
		want string
	}{
		{Condition{}, "true"},
		{Condition{Key: "x"}, "x"},
		{Condition{Key: "x", Op: OpExists}, "x exists"},
		{Condition{Key: "x", Op: OpEq, Value: 3}, "x eq 3"},
		{Condition{All: []Condition{{Key: "a"}, {Key: "b"}}}, "(a && b)"},
		{Condition{Any: []Condition{{Key: "a"}, {Key: "b"}}}, "(a || b)"},
	}
	for _, tt := range tests {
		if got := tt.cond.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestConditionSurvivesSerialization(t *testing.T) {
	cond := Condition{All: []Condition{
		{Key: "order.total", Op: OpGte, Value: 10},
		{Any: []Condition{
			{Key: "order.status", Op: OpEq, Value: "approved"},
			{Key: "override", Op: OpExists},
		}},
	}}

	edge := Edge{From: "a", To: []string{"b"}, Guard: &cond}
	model := &Model{Name: "m", Nodes: []Node{{Name: "a"}, {Name: "b"}}, Edges: []Edge{edge}}

	cp := &Checkpoint{ID: "cp", Machine: "m", Model: model, Context: map[string]any{}}
	data, err := MarshalCheckpoint(cp)
	if err != nil {
		t.Fatalf("MarshalCheckpoint() error: %v", err)
	}
	restored, err := UnmarshalCheckpoint(data)
	if err != nil {
		t.Fatalf("UnmarshalCheckpoint() error: %v", err)
	}

	guard := restored.Model.Edges[0].Guard
	if guard == nil {
		t.Fatal("guard lost in round trip")
	}

	ctx := condCtx(map[string]any{"order.total": 50, "override": true})
	if !guard.Eval(ctx) {
		t.Error("restored guard evaluates false, want true")
	}
	ctx2 := condCtx(map[string]any{"order.total": 5, "override": true})
	if guard.Eval(ctx2) {
		t.Error("restored guard evaluates true, want false")
	}
}
