package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a LOG_LEVEL value onto a slog level. Unknown values are info.
func ParseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger returns a JSON logger on stdout. Records logged with a context
// that carries a span get trace_id and span_id at the top level.
func NewLogger(level slog.Level, attrs ...slog.Attr) *slog.Logger {
	return newLogger(os.Stdout, level, attrs...)
}

func newLogger(w io.Writer, level slog.Level, attrs ...slog.Attr) *slog.Logger {
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(&traceHandler{base: base.WithAttrs(attrs)})
}

// handlerOp is a deferred WithGroup (group set) or WithAttrs call.
type handlerOp struct {
	group string
	attrs []slog.Attr
}

// traceHandler replays WithAttrs/WithGroup calls after the trace attributes
// so that the ids stay outside any group.
type traceHandler struct {
	base slog.Handler
	ops  []handlerOp
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := h.base

	var ids []slog.Attr
	traceID, spanID := spanIDs(ctx)
	if traceID != "" {
		ids = append(ids, slog.String("trace_id", traceID))
	}
	if spanID != "" {
		ids = append(ids, slog.String("span_id", spanID))
	}
	if len(ids) > 0 {
		handler = handler.WithAttrs(ids)
	}

	for _, op := range h.ops {
		if op.group != "" {
			handler = handler.WithGroup(op.group)
		} else {
			handler = handler.WithAttrs(op.attrs)
		}
	}
	return handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(handlerOp{attrs: attrs})
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(handlerOp{group: name})
}

func (h *traceHandler) with(op handlerOp) *traceHandler {
	ops := make([]handlerOp, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &traceHandler{base: h.base, ops: append(ops, op)}
}
