package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPrettyHandlerOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)
	log.Info("checkpoint restored", "path", "/ckpt", "params", 3)

	out := buf.String()
	for _, want := range []string{"INFO", "checkpoint restored", "path=/ckpt", "params=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %s", want, out)
		}
	}

	buf.Reset()
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug record written at info level: %s", buf.String())
	}
}

func TestWithCarriesAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug).With("strategy", "single")
	log.Debug("environment ready")

	if !strings.Contains(buf.String(), "strategy=single") {
		t.Fatalf("bound attr missing: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	log := Nop()
	ctx := WithContext(context.Background(), log)
	if got := FromContext(ctx); got != log {
		t.Fatal("context did not return the stored logger")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("empty context should fall back to the default logger")
	}
}

func TestJSONLoggerOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("serving", "addr", "127.0.0.1:8080")

	out := buf.String()
	if !strings.Contains(out, `"msg":"serving"`) || !strings.Contains(out, `"addr":"127.0.0.1:8080"`) {
		t.Fatalf("unexpected JSON output: %s", out)
	}
}
