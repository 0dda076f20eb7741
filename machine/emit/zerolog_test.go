package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologEmitterLevels(t *testing.T) {
	tests := []struct {
		msg       string
		wantLevel string
	}{
		{"path_failed", "error"},
		{"execution_failed", "error"},
		{"checkpoint_failed", "error"},
		{"execution_completed", "info"},
		{"barrier_merged", "info"},
		{"path_advanced", "debug"},
		{"checkpoint_created", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			var buf bytes.Buffer
			em := NewZerologEmitter(zerolog.New(&buf))
			em.Emit(Event{ExecutionID: "e1", Step: 3, PathID: "p001", Msg: tt.msg})

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("log line is not JSON: %v", err)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["message"] != tt.msg {
				t.Errorf("message = %v, want %s", entry["message"], tt.msg)
			}
			if entry["execution"] != "e1" || entry["step"] != float64(3) || entry["path"] != "p001" {
				t.Errorf("structured fields wrong: %v", entry)
			}
		})
	}
}

func TestZerologEmitterMeta(t *testing.T) {
	var buf bytes.Buffer
	em := NewZerologEmitter(zerolog.New(&buf))
	em.Emit(Event{
		ExecutionID: "e1",
		Msg:         "barrier_merged",
		Meta:        map[string]any{"arrivals": 2},
	})
	line := buf.String()
	if !strings.Contains(line, `"arrivals":2`) {
		t.Errorf("log line %q missing meta field", line)
	}
}
