// Package applog wires up the module's single process-wide structured logger.
//
// The teacher repo logs through a hand-rolled file writer
// (internal/utils/debug.go); the rest of the retrieved pack shows no
// third-party logging library anywhere, and kmkrofficial-project-tachyon
// uses log/slog directly for the same ambient concern, so that is the
// precedent followed here instead of inventing a bespoke writer.
package applog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	once    sync.Once
	logger  *slog.Logger
	logFile *os.File
)

// Init configures the process logger to write text to stderr and JSON lines
// to <configDir>/aura.log. Safe to call more than once; only the first call
// takes effect.
func Init(configDir string) *slog.Logger {
	once.Do(func() {
		handlers := []slog.Handler{slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})}

		if configDir != "" {
			if err := os.MkdirAll(configDir, 0o755); err == nil {
				f, err := os.OpenFile(filepath.Join(configDir, "aura.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err == nil {
					logFile = f
					handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
				}
			}
		}

		logger = slog.New(&multiHandler{handlers: handlers})
		slog.SetDefault(logger)
	})
	return logger
}

// Get returns the process logger, initializing a stderr-only one if Init was
// never called (tests and simple invocations).
func Get() *slog.Logger {
	if logger == nil {
		return Init("")
	}
	return logger
}

// Close releases the underlying log file, if one was opened.
func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// multiHandler fans a single slog record out to every wrapped handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
