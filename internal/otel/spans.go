package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	AttrProject     = attribute.Key("udo.project.path")
	AttrStorageID   = attribute.Key("udo.project.storage_id")
	AttrOperation   = attribute.Key("udo.op")
	AttrSessionFile = attribute.Key("udo.session.file")
)

// StartSpan starts an internal span with the given attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
