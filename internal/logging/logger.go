// Package logging provides structured logging configuration using log/slog.
//
// Loggers pulled from a request context carry the chi request ID and, once
// a load has started, the load ID, so every line written for one upload can
// be found together.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvload/internal/core"
)

// New builds a logger writing to w.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup installs a stdout logger as the slog default and returns it.
func Setup(level, format string) *slog.Logger {
	logger := New(level, format, os.Stdout)
	slog.SetDefault(logger)
	return logger
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns the default logger enriched with request context.
//
//	func handleRun(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("run requested", "file_id", req.FileID)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	return Enrich(ctx, slog.Default())
}

// Enrich adds request_id, load_id and client_ip from ctx to logger when
// they are present.
func Enrich(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if loadID := core.LoadIDFromContext(ctx); loadID != "" {
		logger = logger.With("load_id", loadID)
	}
	if ip, _ := core.ClientFromContext(ctx); ip != "" {
		logger = logger.With("client_ip", ip)
	}
	return logger
}

// WithFields returns a context logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
