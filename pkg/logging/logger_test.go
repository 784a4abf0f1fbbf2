package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error level", " error ", slog.LevelError},
		{"default info", "", slog.LevelInfo},
		{"unknown falls back", "verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Fatalf("ParseLevel(%q) = %s, want %s", tt.level, got, tt.want)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()

	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}

	if Default() == logger {
		t.Error("Default() returned the same instance twice")
	}
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("debug", &buf).With("component", "booking")

	logger.Info("slot reserved", "doctor_id", "doc-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["component"] != "booking" {
		t.Fatalf("expected component attribute, got %v", entry["component"])
	}
	if entry["doctor_id"] != "doc-1" {
		t.Fatalf("expected doctor_id attribute, got %v", entry["doctor_id"])
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	if got := logger.With("k", "v"); got == nil || got.Logger == nil {
		t.Fatal("expected usable logger from nil receiver")
	}
}
