package txn

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (d *Domain) startSpan(ctx context.Context, name string, tx *Transaction) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("txn.id", int64(tx.id)),
		attribute.Int("txn.depth", tx.Depth()),
		attribute.Bool("txn.read_only", tx.readOnly),
		attribute.String("txn.owner", tx.owner.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
