// Package logs holds the process-wide structured logger.
package logs

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

// Log is the default logger instance. It writes text records at info level
// to stderr until Setup replaces it.
var Log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: errorText}))

// ParseLevel maps a config level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %q", name)
}

// Setup rebuilds Log with the given level and format ("text" or "json").
func Setup(level, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: errorText}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return errors.Errorf("unknown log format %q", format)
	}

	Log = slog.New(h)
	return nil
}

// Rank returns Log tagged with the process rank.
func Rank(rank int) *slog.Logger {
	return Log.With(slog.Int("rank", rank))
}

// errorText logs error values by their message. Errors from pkg/errors
// would otherwise be formatted with %+v, stack trace included.
func errorText(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	if err, ok := a.Value.Any().(error); ok && err != nil {
		return slog.String(a.Key, err.Error())
	}
	return a
}
