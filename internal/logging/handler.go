package logging

import (
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// NewLogger builds the process root logger on a charmbracelet/log handler.
// level is one of debug/info/warn/error; format is "json" or "text".
// Unrecognized values fall back to info and json.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	options := charmlog.Options{
		Level:           parseLevel(level),
		ReportTimestamp: true,
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		options.Formatter = charmlog.JSONFormatter
	}
	return slog.New(charmlog.NewWithOptions(w, options))
}

func parseLevel(level string) charmlog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return charmlog.DebugLevel
	case "warn", "warning":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}
