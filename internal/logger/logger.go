// Package logger configures the proxy's own slog output. The client
// conversation owns stdout on the stdio transport, so diagnostics always
// go to stderr or to a rotating file.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the optional log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Options selects destination, level and coloring.
type Options struct {
	Level  string // debug, info, warn, error
	File   string // when set, log to this rotating file instead of stderr
	Colors bool   // colorize level names (stderr only)
}

// Setup installs the process-wide default logger and returns a closer for
// the file writer, if any.
func Setup(opts Options) func() {
	var w io.Writer = os.Stderr
	closer := func() {}
	if opts.File != "" {
		ljw := &lj.Logger{
			Filename:   opts.File,
			MaxSize:    DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAge:     DefaultMaxAgeDays,
		}
		w = ljw
		closer = func() { _ = ljw.Close() }
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler = slog.NewTextHandler(w, hopts)
	if opts.Colors && opts.File == "" {
		handler = NewColorTextHandler(w, hopts)
	}
	slog.SetDefault(slog.New(handler))
	return closer
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
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
