package decide

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPrompt renders a Request as the instruction text sent to a language
// model provider. The model is asked to answer with a small JSON object so
// ParseResponse can decode it:
//
//	{"selected": "<option label>", "outputs": {"key": "value"}}
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are resolving a transition in the state machine %q.\n", req.Machine)
	fmt.Fprintf(&b, "The current node is %q.\n\n", req.Node)

	if req.Prompt != "" {
		b.WriteString(req.Prompt)
		b.WriteString("\n\n")
	}

	if len(req.Options) > 0 {
		b.WriteString("Choose exactly one of these transitions:\n")
		for _, opt := range req.Options {
			if opt.Label != "" {
				fmt.Fprintf(&b, "  - %q leading to %s\n", opt.Label, strings.Join(opt.Targets, ", "))
			} else {
				fmt.Fprintf(&b, "  - %s\n", strings.Join(opt.Targets, ", "))
			}
		}
		b.WriteString("\n")
	}

	if len(req.Outputs) > 0 {
		fmt.Fprintf(&b, "Also produce values for these output keys: %s\n\n",
			strings.Join(req.Outputs, ", "))
	}

	b.WriteString(`Respond with a single JSON object of the form {"selected": "<label or target>", "outputs": {}} and nothing else.`)
	return b.String()
}

// ParseResponse decodes a model reply into a Response. It accepts the JSON
// object requested by BuildPrompt, tolerating surrounding prose and
// markdown code fences. A reply that is not parseable returns
// ErrMalformedResponse.
func ParseResponse(text string) (Response, error) {
	raw := extractJSON(text)
	if raw != "" {
		// "selected" may arrive as a single string or a list of labels.
		var wire struct {
			Selected json.RawMessage   `json:"selected"`
			Outputs  map[string]string `json:"outputs"`
		}
		if err := json.Unmarshal([]byte(raw), &wire); err == nil {
			resp := Response{Outputs: wire.Outputs}
			if len(wire.Selected) > 0 {
				var one string
				var many []string
				if err := json.Unmarshal(wire.Selected, &one); err == nil && one != "" {
					resp.Selected = []string{one}
				} else if err := json.Unmarshal(wire.Selected, &many); err == nil {
					resp.Selected = many
				}
			}
			if len(resp.Selected) > 0 || len(resp.Outputs) > 0 {
				return resp, nil
			}
		}
	}

	// Some models answer with the bare label despite instructions.
	trimmed := strings.Trim(strings.TrimSpace(text), `"'`)
	if trimmed != "" && !strings.ContainsAny(trimmed, "\n{}") {
		return Response{Selected: []string{trimmed}}, nil
	}
	return Response{}, fmt.Errorf("%w: %.120q", ErrMalformedResponse, text)
}

// extractJSON returns the first top-level JSON object in text, or "".
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
