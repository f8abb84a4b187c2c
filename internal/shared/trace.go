// Package shared carries the request-scoped identifiers every udo log line
// and span is tagged with.
package shared

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	projectKey
	sessionIDKey
)

func with(ctx context.Context, key ctxKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func lookup(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// NewTraceID returns a random identifier for one command invocation.
func NewTraceID() string { return uuid.NewString() }

func WithTraceID(ctx context.Context, id string) context.Context {
	return with(ctx, traceIDKey, id)
}

// TraceID is "-" when no trace id was attached.
func TraceID(ctx context.Context) string {
	if id := lookup(ctx, traceIDKey); id != "" {
		return id
	}
	return "-"
}

// WithProject records the working path of the project being operated on.
func WithProject(ctx context.Context, workingPath string) context.Context {
	return with(ctx, projectKey, workingPath)
}

func Project(ctx context.Context) string { return lookup(ctx, projectKey) }

// WithSessionID tags a watch session; the id is the session start stamp.
func WithSessionID(ctx context.Context, id string) context.Context {
	return with(ctx, sessionIDKey, id)
}

func SessionID(ctx context.Context) string { return lookup(ctx, sessionIDKey) }

// LogAttrs flattens the identifiers on ctx into slog key/value pairs.
// trace_id is always present; the others only when set.
func LogAttrs(ctx context.Context) []any {
	attrs := []any{"trace_id", TraceID(ctx)}
	for _, f := range []struct {
		name string
		key  ctxKey
	}{{"project", projectKey}, {"session_id", sessionIDKey}} {
		if v := lookup(ctx, f.key); v != "" {
			attrs = append(attrs, f.name, v)
		}
	}
	return attrs
}
