// Package logger configures the process-wide structured logger with a
// colored console handler.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// ConsoleHandler is a slog.Handler that writes colored single-line records.
type ConsoleHandler struct {
	mu       *sync.Mutex
	writer   io.Writer
	logLevel slog.Level
	attrs    []slog.Attr
}

// NewConsoleHandler creates a handler writing to w at the given level.
func NewConsoleHandler(w io.Writer, logLevel slog.Level) *ConsoleHandler {
	return &ConsoleHandler{
		mu:       &sync.Mutex{},
		writer:   w,
		logLevel: logLevel,
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	line := fmt.Sprintf(
		"%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		r.Message,
	)

	for _, attr := range h.attrs {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
	}
	r.Attrs(func(attr slog.Attr) bool {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
		return true
	})

	line += "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write([]byte(line))
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &ConsoleHandler{
		mu:       h.mu,
		writer:   h.writer,
		logLevel: h.logLevel,
		attrs:    newAttrs,
	}
}

func (h *ConsoleHandler) WithGroup(_ string) slog.Handler {
	return h
}

// Init installs the console handler as the default slog logger.
func Init(logLevel slog.Level) {
	slog.SetDefault(slog.New(NewConsoleHandler(os.Stdout, logLevel)))
	slog.Debug("logger initialized")
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}
