package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogServiceLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewSlogServiceLogger(base)

	logger.Info("processing job", LogFields{"correlation_id": "corr-1"})

	out := buf.String()
	if !strings.Contains(out, "processing job") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "corr-1") {
		t.Errorf("output missing field: %s", out)
	}
}

func TestWithAddsPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logger := NewSlogServiceLogger(base).With(LogFields{"component": "executor"})

	logger.Info("started", nil)

	if !strings.Contains(buf.String(), "executor") {
		t.Errorf("output missing persistent field: %s", buf.String())
	}
}

func TestWatermillAdapterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	adapter := NewWatermillAdapter(NewSlogServiceLogger(base))

	adapter.Info("router started", map[string]any{"queue": "agent-jobs"})

	out := buf.String()
	if !strings.Contains(out, "router started") || !strings.Contains(out, "agent-jobs") {
		t.Errorf("adapter output incomplete: %s", out)
	}
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	// Must not panic on any level.
	logger.Debug("x", nil)
	logger.Info("x", LogFields{"k": "v"})
	logger.Error("x", nil, nil)
	logger.Trace("x", nil)
	logger.With(LogFields{"k": "v"}).Info("y", nil)
}
