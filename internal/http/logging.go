package http

import (
	"context"
	"log/slog"

	"github.com/example/doorsync/internal/logging"
)

// defaultLogger keeps handler constructors total: a nil logger falls back
// to the process default instead of panicking on first use.
func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// handlerLogger picks the logger for a single request. A request-scoped
// logger installed by RequestLogger wins so every handler line carries the
// request id; outside a request the handler's own logger is used.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	pairs = append(pairs, attrs...)
	return logger.With(pairs...)
}
