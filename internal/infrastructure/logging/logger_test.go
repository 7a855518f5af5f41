package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not one JSON entry: %v\n%s", err, buf.String())
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"light discovered"`},
		{"JSON", `"msg":"light discovered"`},
		{"text", `msg="light discovered"`},
		{"", `"msg":"light discovered"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewWithWriter(config.LoggingConfig{Format: tt.format}, "v", &buf).Info("light discovered")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestComponent_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test-build", &buf)
	logger.Component("transport").Info("socket bound", "port", 56700)

	entry := decodeEntry(t, &buf)
	want := map[string]any{
		"msg":       "socket bound",
		"service":   ServiceName,
		"version":   "test-build",
		"component": "transport",
		"port":      float64(56700),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] = %v, want %v", k, entry[k], v)
		}
	}
}

func TestTimeIsUTCMillis(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(config.LoggingConfig{Format: "json"}, "v", &buf).Info("tick")

	raw, _ := decodeEntry(t, &buf)["time"].(string)
	ts, err := time.Parse("2006-01-02T15:04:05.000Z", raw)
	if err != nil {
		t.Fatalf("time %q not in UTC millisecond form: %v", raw, err)
	}
	if d := time.Since(ts); d < 0 || d > time.Minute {
		t.Errorf("time %v is not now", ts)
	}
}

func TestSetLevel_SharedWithComponents(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "v", &buf)
	child := logger.Component("service")

	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}

	logger.SetLevel("debug")
	child.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug entry missing after SetLevel: %q", buf.String())
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
	d := Discard()
	d.SetLevel("debug")
	d.Component("x").Error("nothing to see")
}
