package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWritesNamedLines(t *testing.T) {
	t.Setenv(EnvJSONLog, "")
	var buf bytes.Buffer
	logger := NewLogger("n8nbox", "debug", &buf)

	logger.Debug("download started", "asset", "runtime")

	out := buf.String()
	if !strings.Contains(out, "n8nbox") || !strings.Contains(out, "asset=runtime") {
		t.Errorf("unexpected log output: %q", out)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("n8nbox", "warn", &buf)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		configured string
		want       string
	}{
		{"env wins", "trace", "warn", "trace"},
		{"configured", "", "warn", "warn"},
		{"default", "", "", DefaultLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogLevel, tt.env)
			if got := ResolveLevel(tt.configured); got != tt.want {
				t.Errorf("ResolveLevel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrNull(t *testing.T) {
	if OrNull(nil) == nil {
		t.Fatal("OrNull(nil) returned nil")
	}
}
