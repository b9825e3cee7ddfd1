// Package log is a thin structured-logging facade over log/slog.
//
// Records are enriched with the logger name, OTel trace/span IDs when a
// span is in the context, and a rendered stack for error-level records.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	// Name identifies the logger in every record ("logger" attribute).
	Name string

	Level           slog.Level
	StacktraceLevel slog.Level
	JSONFormat      bool
	Writer          io.Writer
}

// DefaultName is used when Options.Name is empty.
const DefaultName = "essentials-logger"

func New(opts Options) (Logger, error) { return newSlog(opts) }

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %s (valid levels are debug|info|warn|error)", s)
	}
}
