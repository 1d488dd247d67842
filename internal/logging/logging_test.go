package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "test").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above warn level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "kept" || entry["component"] != "test" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("timestamp missing")
	}
}

func TestNewConsoleAndDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "console", Level: "bogus"}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("invalid level should fall back to info, got %s", logger.GetLevel())
	}

	logger.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}
