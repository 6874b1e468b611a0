package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// bufferLogger builds a Logger writing JSON entries into buf, bypassing the
// stdout/stderr/file plumbing so tests can read what was logged.
func bufferLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler)}
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("log entry is not JSON: %v (%q)", err, lines[len(lines)-1])
	}
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero config", cfg: Config{}},
		{name: "debug json stdout", cfg: Config{Level: "debug", Format: "json", Output: "stdout"}},
		{name: "warn text stderr", cfg: Config{Level: "warn", Format: "text", Output: "stderr"}},
		{name: "error level", cfg: Config{Level: "error"}},
		{name: "unknown level degrades to info", cfg: Config{Level: "chatty"}},
		{name: "unknown format degrades to json", cfg: Config{Format: "xml"}},
		{name: "unwritable output file", cfg: Config{Output: "/nonexistent/dir/gateway.log"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger without error")
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")

	logger, err := New(Config{Output: path})
	if err != nil {
		t.Fatalf("New() with file output error = %v", err)
	}
	logger.Info("queue drained", "queue", "service.example")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "queue drained") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("warn-level logger reports debug as enabled")
	}
	if !logger.Enabled(ctx, slog.LevelError) {
		t.Error("warn-level logger reports error as disabled")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil || logger.Logger == nil {
		t.Fatal("Default() returned an unusable logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Default() logger does not log at info")
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	logger.Component("backend").Info("master resolved")

	entry := lastEntry(t, &buf)
	if entry["component"] != "backend" {
		t.Errorf("component = %v, want backend", entry["component"])
	}
}

func TestLogger_WithQueue(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	logger.WithQueue("service.echo").Warn("queue full, retrying")

	entry := lastEntry(t, &buf)
	if entry["queue"] != "service.echo" {
		t.Errorf("queue = %v, want service.echo", entry["queue"])
	}
}

func TestLogger_WithCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	logger.WithCaller("cid-abc", "a1b2").Info("reply queue bound")

	entry := lastEntry(t, &buf)
	if entry["client_id"] != "cid-abc" {
		t.Errorf("client_id = %v, want cid-abc", entry["client_id"])
	}
	if entry["thread_id"] != "a1b2" {
		t.Errorf("thread_id = %v, want a1b2", entry["thread_id"])
	}
}

func TestLogger_WithRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	logger.WithRequest(42).Info("request sent")

	entry := lastEntry(t, &buf)
	if entry["request_id"] != float64(42) {
		t.Errorf("request_id = %v, want 42", entry["request_id"])
	}
}

func TestLogger_FieldsCompose(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	logger.Component("server").WithQueue("service.echo").WithRequest(7).Info("response routed")

	entry := lastEntry(t, &buf)
	for key, want := range map[string]any{
		"component":  "server",
		"queue":      "service.echo",
		"request_id": float64(7),
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestLogger_DerivedLoggersAreIndependent(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	_ = logger.WithQueue("service.echo")

	logger.Info("no queue here")
	entry := lastEntry(t, &buf)
	if _, ok := entry["queue"]; ok {
		t.Error("deriving a logger mutated its parent")
	}
}

func TestErr(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	logger.Error("send failed", Err(errors.New("queue was full")))

	entry := lastEntry(t, &buf)
	if entry["error"] != "queue was full" {
		t.Errorf("error = %v, want %q", entry["error"], "queue was full")
	}
}

func TestErr_NilIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelInfo)

	logger.Info("all fine", Err(nil))

	entry := lastEntry(t, &buf)
	if _, ok := entry["error"]; ok {
		t.Errorf("Err(nil) produced an error field: %v", entry["error"])
	}
}

func TestLogger_DebugContext(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, slog.LevelDebug)

	logger.DebugContext(context.Background(), "ignoring unknown v3 header", "key", "x-custom")

	entry := lastEntry(t, &buf)
	if entry["msg"] != "ignoring unknown v3 header" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["key"] != "x-custom" {
		t.Errorf("key = %v, want x-custom", entry["key"])
	}
}
