package machine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Context is the shared execution context: a flat key/value map visible to
// every path of one execution. Keys are node-qualified ("node.attr" or any
// caller-chosen flat key); writes overwrite.
//
// The Context is mutated only from the executor's serialized commit phase
// (one mutation point per step), so it carries no lock of its own. Snapshots
// taken for checkpoints are deep copies and never alias live state.
type Context struct {
	values map[string]any
}

// NewContext creates an empty shared context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores a value, overwriting any previous value for the key.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Get returns the value for key and whether it is present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns all keys in sorted order. Sorting keeps everything derived
// from the context (diffs, summaries, serialized forms) deterministic.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	return len(c.values)
}

// Snapshot returns a deep copy of the stored values via a JSON round-trip.
// Deep copying through JSON handles nested maps and slices without aliasing;
// values must therefore be JSON-serializable, which the checkpoint format
// requires anyway.
func (c *Context) Snapshot() (map[string]any, error) {
	data, err := json.Marshal(c.values)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot context: %w", err)
	}
	out := make(map[string]any, len(c.values))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to restore context snapshot: %w", err)
	}
	return out, nil
}

// restore replaces the stored values with a deep copy of the given map.
func (c *Context) restore(values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to copy context values: %w", err)
	}
	fresh := make(map[string]any, len(values))
	if err := json.Unmarshal(data, &fresh); err != nil {
		return fmt.Errorf("failed to copy context values: %w", err)
	}
	c.values = fresh
	return nil
}

// ResolveTemplate substitutes "{{key}}" references in s with context values.
// Unknown references resolve to the empty string. Keys are trimmed, so
// "{{ order.total }}" and "{{order.total}}" are equivalent.
func (c *Context) ResolveTemplate(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	rest := s
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close := strings.Index(rest[open:], "}}")
		if close < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close += open
		b.WriteString(rest[:open])
		key := strings.TrimSpace(rest[open+2 : close])
		if v, ok := c.values[key]; ok {
			fmt.Fprintf(&b, "%v", v)
		}
		rest = rest[close+2:]
	}
}

// resolveAttr produces the effective value of an attribute: templated
// attributes are resolved against the context, literal attributes are
// returned as-is.
func (c *Context) resolveAttr(v AttrValue) any {
	if v.Template != "" {
		return c.ResolveTemplate(v.Template)
	}
	return v.Raw
}
