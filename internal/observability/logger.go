package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogLevel selects the minimum level of the structured logger.
const EnvLogLevel = "DEVFLOW_LOG_LEVEL"

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" onto slog
// levels. Anything else yields the fallback.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return fallback
}

// NewLogger returns a JSON slog logger writing to w at the given level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewLoggerFromEnv builds the process logger: JSON on stderr, WARN unless
// DEVFLOW_LOG_LEVEL says otherwise.
func NewLoggerFromEnv() *slog.Logger {
	return NewLogger(os.Stderr, ParseLevel(os.Getenv(EnvLogLevel), slog.LevelWarn))
}
