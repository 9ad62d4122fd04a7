// Package logging configures the process-wide structured logger once,
// at the CLI boundary. The segmentation core never imports this
// package directly — strategies and postprocess communicate failures
// and warnings through return values, not a logger instance, so they
// stay testable and reusable outside a CLI context.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the process logger.
type Options struct {
	Verbose bool
	JSON    bool
	Output  io.Writer
}

// Configure installs a process-wide slog.Logger per opts and returns
// it. Call once from main before any work starts.
func Configure(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
