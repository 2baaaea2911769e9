package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWithOptions_WritesFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "indengine.log")
	logger := InitWithOptions("indengine", Options{
		Level:  slog.LevelDebug,
		File:   path,
		Stdout: &console,
	})
	logger.Debug("cycle done", slog.Int("results", 4))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Equal(data, console.Bytes()) {
		t.Errorf("file and console output differ:\n%s\n%s", data, console.Bytes())
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["service"] != "indengine" || rec["msg"] != "cycle done" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestInitWithOptions_LevelFilters(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var console bytes.Buffer
	logger := InitWithOptions("indengine", Options{Level: slog.LevelWarn, Stdout: &console})
	logger.Info("dropped")
	if console.Len() != 0 {
		t.Errorf("info record written at warn level: %s", console.String())
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	// Set and retrieve
	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("NIFTY", ts)

	if tid == "" {
		t.Fatal("expected non-empty trace id")
	}
	if !strings.HasPrefix(tid, "NIFTY-") {
		t.Errorf("expected trace id to start with 'NIFTY-', got %s", tid)
	}
	// Verify it contains the nano timestamp
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	// No trace ID
	attrs := LogWithTrace(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	// With trace ID: returns [slog.Attr] which is a single element
	ctx = WithTraceID(ctx, "abc-123")
	attrs = LogWithTrace(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with trace id set")
	}
}
