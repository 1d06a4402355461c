package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler feeds every record to the process logger and to the run logs
// tapped into it. Each side applies its own level, so a run log can keep info
// lines while the console only shows warnings.
type teeHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	live := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if _, noop := h.(NoopHandler); noop {
			continue
		}
		live = append(live, h)
	}
	if len(live) == 0 {
		return NoopHandler{}
	}
	if len(live) == 1 {
		return live[0]
	}
	return &teeHandler{handlers: live}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes to every enabled side even when one fails, so a full disk
// under the session directory never silences the console.
func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	last := len(h.handlers) - 1
	for i, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if i < last {
			rec = record.Clone()
		}
		if err := handler.Handle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h *teeHandler) each(fn func(slog.Handler) slog.Handler) *teeHandler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = fn(handler)
	}
	return &teeHandler{handlers: next}
}

// TeeLogger taps runLogs into base. The pipeline uses it to mirror a run's
// lines into <session>/logs/<run_id>.log while the console keeps its level.
func TeeLogger(base *slog.Logger, runLogs ...slog.Handler) *slog.Logger {
	handlers := runLogs
	if base != nil {
		handlers = append([]slog.Handler{base.Handler()}, runLogs...)
	}
	return slog.New(newFanoutHandler(handlers...))
}
