package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "info", FormatJSON)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("phase started", zap.String("phase", "1. Initialize Users"), zap.Int("tasks", 10))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["msg"] != "phase started" || entry["phase"] != "1. Initialize Users" {
		t.Errorf("entry = %v", entry)
	}
	if entry["tasks"] != float64(10) {
		t.Errorf("tasks = %v", entry["tasks"])
	}
}

func TestNewWithWriter_ConsoleDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "DEBUG", "")
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	logger.Debug("state transition")
	_ = logger.Sync()

	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "state transition") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewWithWriter_Errors(t *testing.T) {
	if _, err := NewWithWriter(&bytes.Buffer{}, "loud", ""); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewWithWriter(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
