package utils

import (
	"context"
	"log/slog"
)

// TeeHandler fans each record out to the console handler and, when one
// is configured, the log file handler. The file side is optional so
// logging keeps working when the log file cannot be opened.
type TeeHandler struct {
	console slog.Handler
	file    slog.Handler
}

// NewTeeHandler builds a TeeHandler. file may be nil.
func NewTeeHandler(console, file slog.Handler) *TeeHandler {
	return &TeeHandler{console: console, file: file}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.console.Enabled(ctx, level) {
		return true
	}
	return h.file != nil && h.file.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.console.Enabled(ctx, r.Level) {
		err = h.console.Handle(ctx, r)
	}
	if h.file != nil && h.file.Enabled(ctx, r.Level) {
		// records must not be shared between handlers
		if e := h.file.Handle(ctx, r.Clone()); e != nil && err == nil {
			err = e
		}
	}
	return err
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &TeeHandler{console: h.console.WithAttrs(attrs)}
	if h.file != nil {
		out.file = h.file.WithAttrs(attrs)
	}
	return out
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	out := &TeeHandler{console: h.console.WithGroup(name)}
	if h.file != nil {
		out.file = h.file.WithGroup(name)
	}
	return out
}
