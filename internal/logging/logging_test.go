package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_FansOutToTextAndJSON(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "gymhub.log")

	logger, closer := New(Options{Level: "info", File: path, Stdout: &stdout})
	logger.Info("message_sent", "event", "chat_message_created", "message_id", "m1")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !strings.Contains(stdout.String(), "message_id=m1") {
		t.Errorf("text output missing attribute: %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug line should be filtered at info level")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log file is not one JSON line: %v (%q)", err, data)
	}
	if line["msg"] != "message_sent" || line["message_id"] != "m1" {
		t.Errorf("json line = %v", line)
	}
}

func TestNew_NoFile(t *testing.T) {
	var stdout bytes.Buffer
	logger, closer := New(Options{Stdout: &stdout})
	logger.Warn("slow_query")
	if err := closer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !strings.Contains(stdout.String(), "slow_query") {
		t.Errorf("stdout = %q", stdout.String())
	}
}
