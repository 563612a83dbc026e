// Package log is the structured logging facade shared by the adapter's
// packages. It wraps log/slog; until Init or SetLogger is called, records go
// to slog.Default().
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

var logger *slog.Logger

// Format selects the handler used for output.
type Format string

const (
	// FormatAuto picks text for terminals and JSON otherwise.
	FormatAuto Format = ""
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures the logger.
type Options struct {
	// Verbose enables debug/info output. Warn and Error are always written.
	Verbose bool
	// Format selects text or JSON output.
	Format Format
	// Output is the destination (defaults to os.Stderr).
	Output io.Writer
	// Attrs are attached to every record (e.g. the host application's name).
	Attrs []slog.Attr
}

// Init initializes the package logger with the given options.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if useJSON(opts.Format, out) {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		h = slog.NewTextHandler(out, handlerOpts)
	}
	if len(opts.Attrs) > 0 {
		h = h.WithAttrs(opts.Attrs)
	}
	logger = slog.New(h)
}

// useJSON resolves FormatAuto against the output: JSON unless out is a terminal.
func useJSON(f Format, out io.Writer) bool {
	switch f {
	case FormatJSON:
		return true
	case FormatText:
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return true
	}
	return !isatty.IsTerminal(file.Fd()) && !isatty.IsCygwinTerminal(file.Fd())
}

// SetLogger routes all adapter logging through l. Passing nil restores
// slog.Default().
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	logger = l
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return logger
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

// DebugContext logs a debug message carrying ctx (trace correlation for
// handlers that read it).
func DebugContext(ctx context.Context, msg string, args ...any) {
	logger.DebugContext(ctx, msg, args...)
}

// WarnContext logs a warning message carrying ctx.
func WarnContext(ctx context.Context, msg string, args ...any) {
	logger.WarnContext(ctx, msg, args...)
}

// With returns a logger with additional context.
func With(args ...any) *slog.Logger {
	return logger.With(args...)
}

// SetOutput sets the output writer (for testing).
func SetOutput(w io.Writer) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger = slog.New(handler)
}

func init() {
	logger = slog.Default()
}
