package logbuf

import (
	"context"
	"log/slog"
	"slices"
)

// Handler tees slog records into a Buffer while delegating to an inner
// handler for normal output. It claims every level so the buffer always
// has the full picture even when stdout is filtered to INFO or above.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	bound  []slog.Attr
	groups []string
}

// NewHandler wraps inner so records also land in buf.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{Time: r.Time, Level: r.Level, Message: r.Message}

	collect := func(a slog.Attr) {
		// The subsystem tag becomes the entry's component; everything
		// else stays a plain attribute.
		if e.Component == "" && len(h.groups) == 0 && slices.Contains(componentKeys, a.Key) {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				e.Component = s
				return
			}
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any)
		}
		key := a.Key
		for i := len(h.groups) - 1; i >= 0; i-- {
			key = h.groups[i] + "." + key
		}
		e.Attrs[key] = attrValue(a.Value)
	}

	for _, a := range h.bound {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	h.buf.Write(e)

	// stdout keeps its own level filter.
	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

// attrValue flattens an slog value into something JSON-safe. Errors are
// stringified so they don't marshal to {}.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		inner:  h.inner.WithAttrs(attrs),
		buf:    h.buf,
		bound:  append(h.bound[:len(h.bound):len(h.bound)], attrs...),
		groups: h.groups,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:  h.inner.WithGroup(name),
		buf:    h.buf,
		bound:  h.bound,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}
