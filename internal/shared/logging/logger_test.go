package logging

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	id "marco/internal/shared/utils/id"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.add("DEBUG", format, args...) }
func (r *recordingLogger) Info(format string, args ...any)  { r.add("INFO", format, args...) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.add("WARN", format, args...) }
func (r *recordingLogger) Error(format string, args ...any) { r.add("ERROR", format, args...) }

func (r *recordingLogger) add(level, format string, args ...any) {
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typed *ComponentLogger
	var logger Logger = typed
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world") // should not panic
}

func TestWriterLoggerFormatsAndFiltersLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWriterLogger(buf, "Dispatch", LevelInfo)

	logger.Debug("hidden %d", 1)
	logger.Info("tick done: %d due", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[INFO] [SERVICE] [Dispatch]") || !strings.Contains(out, "tick done: 3 due") {
		t.Fatalf("unexpected log line %q", out)
	}
}

func TestWithLogIDTagsComponentLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewWriterLogger(buf, "Intake", LevelDebug)

	ctx := id.WithLogID(context.Background(), "log-123")
	FromContext(ctx, base).Warn("slow extractor")

	if !strings.Contains(buf.String(), "[log_id=log-123]") {
		t.Fatalf("expected log id tag, got %q", buf.String())
	}
}

func TestWithLogIDPrefixesPlainLoggers(t *testing.T) {
	rec := &recordingLogger{}
	WithLogID(rec, "abc").Error("boom %s", "now")
	if len(rec.lines) != 1 || rec.lines[0] != "ERROR logid=abc boom now" {
		t.Fatalf("unexpected lines %v", rec.lines)
	}
}

func TestFromContextTagsUser(t *testing.T) {
	rec := &recordingLogger{}
	ctx := id.WithUserID(id.WithLogID(context.Background(), "l%d"), 42)
	FromContext(ctx, rec).Info("got %q", "yes")
	if len(rec.lines) != 1 || rec.lines[0] != `INFO logid=l%d user=42 got "yes"` {
		t.Fatalf("unexpected lines %v", rec.lines)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
