package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures a global slog logger. JSON if YARAD_JSON_LOG=1/true/json else text.
// level overrides YARAD_LOG_LEVEL when non-empty.
func Init(service, level string) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service, level string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("YARAD_JSON_LOG"))
	json := mode == "1" || mode == "true" || mode == "json"
	if level == "" {
		level = os.Getenv("YARAD_LOG_LEVEL")
	}
	opts := &slog.HandlerOptions{AddSource: false, Level: ParseLevel(level)}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Debug("logging initialized", "json", json)
	return logger
}

// ParseLevel maps a textual level to a slog level. Unknown values fall back to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether lvl is one of the recognised level names.
func ValidLevel(lvl string) bool {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "", "debug", "trace", "info", "warn", "warning", "error":
		return true
	}
	return false
}
