// Package logging builds the hclog loggers used across n8nbox.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// EnvLogLevel overrides the configured log level.
	EnvLogLevel = "N8NBOX_LOG_LEVEL"
	// EnvJSONLog switches output to JSON when set to "1".
	EnvJSONLog = "N8NBOX_JSON_LOG"
	// DefaultLevel is used when neither config nor environment set a level.
	DefaultLevel = "info"
)

// NewLogger creates a new hclog logger with standard settings.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	opts := &hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: os.Getenv(EnvJSONLog) == "1",
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	}

	return hclog.New(opts)
}

// ResolveLevel picks the effective level: environment first, then the
// configured value, then DefaultLevel.
func ResolveLevel(configured string) string {
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		return level
	}
	if configured != "" {
		return configured
	}
	return DefaultLevel
}

// OrNull returns logger, or a null logger when logger is nil.
func OrNull(logger hclog.Logger) hclog.Logger {
	if logger == nil {
		return hclog.NewNullLogger()
	}
	return logger
}
