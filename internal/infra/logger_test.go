package infra

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("production", &buf)
	logger.Info().Str("job_id", "j1").Msg("hello")
	logger.Debug().Msg("dropped")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "hello" || entry["job_id"] != "j1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerDevelopmentUsesConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("development", &buf).Debug().Msg("visible")
	out := buf.String()
	if !strings.Contains(out, "visible") || strings.HasPrefix(out, "{") {
		t.Fatalf("unexpected console output %q", out)
	}
}
