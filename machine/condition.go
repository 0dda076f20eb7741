package machine

import (
	"fmt"
	"strconv"
	"strings"
)

// CondOp is a comparison operator usable in edge guards.
type CondOp string

const (
	OpEq       CondOp = "eq"
	OpNe       CondOp = "ne"
	OpGt       CondOp = "gt"
	OpLt       CondOp = "lt"
	OpGte      CondOp = "gte"
	OpLte      CondOp = "lte"
	OpExists   CondOp = "exists"
	OpAbsent   CondOp = "absent"
	OpContains CondOp = "contains"
	OpTruthy   CondOp = "truthy"
)

// Condition is a boolean expression over the shared execution context.
//
// Guards must survive checkpoint serialization, so they are data rather than
// functions: a leaf compares one context key against a value, and the All /
// Any fields compose leaves into conjunctions and disjunctions. An empty
// condition evaluates true.
type Condition struct {
	// Key is the node-qualified context key a leaf condition inspects.
	Key string `json:"key,omitempty"`

	// Op is the leaf comparison operator. Empty with a non-empty Key means
	// OpTruthy.
	Op CondOp `json:"op,omitempty"`

	// Value is the comparand for binary operators.
	Value any `json:"value,omitempty"`

	// All, when non-empty, requires every sub-condition to hold.
	All []Condition `json:"all,omitempty"`

	// Any, when non-empty, requires at least one sub-condition to hold.
	Any []Condition `json:"any,omitempty"`
}

// Eval evaluates the condition against the shared context.
func (c Condition) Eval(ctx *Context) bool {
	if len(c.All) > 0 {
		for _, sub := range c.All {
			if !sub.Eval(ctx) {
				return false
			}
		}
		return true
	}
	if len(c.Any) > 0 {
		for _, sub := range c.Any {
			if sub.Eval(ctx) {
				return true
			}
		}
		return false
	}
	if c.Key == "" {
		return true
	}

	val, ok := ctx.Get(c.Key)
	op := c.Op
	if op == "" {
		op = OpTruthy
	}

	switch op {
	case OpExists:
		return ok
	case OpAbsent:
		return !ok
	case OpTruthy:
		return ok && truthy(val)
	case OpEq:
		return ok && looseEqual(val, c.Value)
	case OpNe:
		return !ok || !looseEqual(val, c.Value)
	case OpContains:
		return ok && contains(val, c.Value)
	case OpGt, OpLt, OpGte, OpLte:
		if !ok {
			return false
		}
		a, aok := asNumber(val)
		b, bok := asNumber(c.Value)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpLt:
			return a < b
		case OpGte:
			return a >= b
		default:
			return a <= b
		}
	}
	return false
}

// String renders the condition in a compact human-readable form for
// validation messages and history labels.
func (c Condition) String() string {
	switch {
	case len(c.All) > 0:
		parts := make([]string, len(c.All))
		for i, sub := range c.All {
			parts[i] = sub.String()
		}
		return "(" + strings.Join(parts, " && ") + ")"
	case len(c.Any) > 0:
		parts := make([]string, len(c.Any))
		for i, sub := range c.Any {
			parts[i] = sub.String()
		}
		return "(" + strings.Join(parts, " || ") + ")"
	case c.Key == "":
		return "true"
	case c.Op == OpExists || c.Op == OpAbsent:
		return fmt.Sprintf("%s %s", c.Key, c.Op)
	case c.Op == "" || c.Op == OpTruthy:
		return c.Key
	default:
		return fmt.Sprintf("%s %s %v", c.Key, c.Op, c.Value)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case int, int64, float64:
		n, _ := asNumber(t)
		return n != 0
	default:
		return true
	}
}

// looseEqual compares values after normalizing numbers to float64, so that a
// guard written with an int literal matches a value that round-tripped
// through JSON as float64.
func looseEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func contains(v, want any) bool {
	needle := fmt.Sprintf("%v", want)
	switch t := v.(type) {
	case string:
		return strings.Contains(t, needle)
	case []any:
		for _, item := range t {
			if looseEqual(item, want) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range t {
			if item == needle {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
