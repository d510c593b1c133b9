// Package logging wraps log/slog with per-component loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is a slog.Logger that can hand out component-scoped children.
// Each Logger caches its own component children, so a child derived from
// WithFeed keeps its attributes.
type Logger struct {
	*slog.Logger
	mu         sync.Mutex
	components map[string]*Logger
}

// New creates a logger writing to w. Format is "text" or "json".
func New(level, format string, w io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}

	return wrap(slog.New(handler)), nil
}

// Discard returns a logger that drops everything. Used by tests and library callers
// that pass no logger.
func Discard() *Logger {
	return wrap(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func wrap(l *slog.Logger) *Logger {
	return &Logger{
		Logger:     l,
		components: make(map[string]*Logger),
	}
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ForComponent returns a logger tagged with the component name.
func (l *Logger) ForComponent(name string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.components[name]
	if !ok {
		cl = wrap(l.Logger.With("component", name))
		l.components[name] = cl
	}
	return cl
}

// WithFeed returns a logger carrying the feed id.
func (l *Logger) WithFeed(feedID int64) *Logger {
	return wrap(l.Logger.With("feed_id", feedID))
}
