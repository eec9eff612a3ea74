package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var defaultLogger *slog.Logger

// requestLogger is the context key for a logger carrying request fields.
type requestLogger struct{}

// Init configures the process-wide logger. Production gets JSON on stdout,
// every other environment gets tint's human readable output.
func Init(env string, level ...string) {
	lvl := slog.LevelDebug
	if env == "production" {
		lvl = slog.LevelInfo
	}
	if len(level) > 0 && level[0] != "" {
		lvl = parseLevel(level[0])
	}

	defaultLogger = slog.New(newHandler(os.Stdout, env, lvl))
	slog.SetDefault(defaultLogger)
}

func newHandler(w io.Writer, env string, lvl slog.Level) slog.Handler {
	if env == "production" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}

	return tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(w),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" && a.Value.Kind() == slog.KindAny {
				if err, ok := a.Value.Any().(error); ok {
					return tint.Err(err)
				}
			}
			return a
		},
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development")
	}
	return defaultLogger
}

// With stores a logger carrying attrs in ctx. Attrs stack on top of any logger
// ctx already holds.
func With(ctx context.Context, attrs ...any) context.Context {
	return context.WithValue(ctx, requestLogger{}, From(ctx).With(attrs...))
}

// From returns the request logger stored by With, falling back to the process
// logger.
func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(requestLogger{}).(*slog.Logger); ok {
			return l
		}
	}
	return LoggerWrapper()
}
