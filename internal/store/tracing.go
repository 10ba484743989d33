package store

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/folio/internal/store"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// startSpan opens a span for one gateway operation.
func startSpan(ctx context.Context, op, table string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.operation", op),
			attribute.String("db.table", table),
		),
	)
}

// endSpan records err on span and closes it. Not-found is an expected
// outcome and is not marked as a span error.
func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
