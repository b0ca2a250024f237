package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("alpha resolved", "source", "metadata")

	output := buf.String()
	if !strings.Contains(output, `"msg":"alpha resolved"`) {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"source":"metadata"`) {
		t.Fatalf("expected source attr in JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Fatalf("expected level INFO in output, got: %s", output)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output for info/debug at warn level, got: %s", buf.String())
	}

	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped")
	log.With("k", "v").Warn("dropped too")
}

func TestConsole(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Console(&buf, slog.LevelInfo, false)
	log.Info("converted adapter", "keys", 3, "alpha", 16.0, "path", "my lora.safetensors")

	output := buf.String()
	for _, want := range []string{"INF converted adapter", "keys=3", "alpha=16", `path="my lora.safetensors"`} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "\033[") {
		t.Fatalf("uncolored handler emitted ANSI codes: %q", output)
	}
}

func TestConsoleColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Console(&buf, slog.LevelInfo, true).Warn("empty translation")
	if !strings.Contains(buf.String(), ansiYellow+"WRN"+ansiReset) {
		t.Fatalf("expected colored level, got: %q", buf.String())
	}
}

func TestConsoleWithAndGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, false)
	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "lora")}).WithGroup("alpha"))
	l.Debug("tier", "name", "rank", slog.Group("shape", "rows", 8))

	output := buf.String()
	for _, want := range []string{"DBG tier", "component=lora", "alpha.name=rank", "alpha.shape.rows=8"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestConsoleEmptyGroup(t *testing.T) {
	t.Parallel()
	h := NewConsoleHandler(&bytes.Buffer{}, nil, false)
	if h.WithGroup("") != h {
		t.Fatal("WithGroup empty string should return same handler")
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("nil level should default to info")
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "pretty", "JSON", "text"} {
		var buf bytes.Buffer
		log, err := Setup(&buf, format, slog.LevelInfo)
		if err != nil {
			t.Fatalf("Setup(%q): %v", format, err)
		}
		log.Info("ready")
		if !strings.Contains(buf.String(), "ready") {
			t.Fatalf("Setup(%q): expected message, got %q", format, buf.String())
		}
	}
	if _, err := Setup(&bytes.Buffer{}, "xml", slog.LevelInfo); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"simple":       false,
		"has space":    true,
		"has\ttab":     true,
		`has"quote`:    true,
		"k=v":          true,
		"":             true,
		"diffusion.up": false,
	}
	for in, want := range tests {
		if got := needsQuoting(in); got != want {
			t.Errorf("needsQuoting(%q): expected %v, got %v", in, want, got)
		}
	}
}
