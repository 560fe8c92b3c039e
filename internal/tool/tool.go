package tool

import (
	"context"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// Tool is the interface every desk tool implements. Parameters returns the
// JSON Schema of the tool's input so the planner prompt can show the model
// each tool's contract. Execute returns the tool's data on success;
// failures are typed errors (ValidationError, PermissionError,
// NotFoundError) that the registry folds into the uniform ToolResult
// envelope.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, input map[string]any) (any, error)
}

// schema assembles a JSON Schema object for a tool's input.
func schema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// prop is one JSON Schema property.
func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

// contextKey is an unexported type for context keys in this package.
type contextKey string

const callerKey = contextKey("caller")

// WithCaller returns a context carrying the authenticated caller. The
// orchestrator sets this once per request; tools re-derive every permission
// decision from it.
func WithCaller(ctx context.Context, c protocol.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext returns the caller from the context, if any.
func CallerFromContext(ctx context.Context) (protocol.Caller, bool) {
	c, ok := ctx.Value(callerKey).(protocol.Caller)
	return c, ok
}
