package providers

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genflow/internal/domain"
)

type tracedAdapter struct {
	Adapter
	tracer trace.Tracer
}

// WithTracing wraps a so every provider call is recorded as a client span.
func WithTracing(a Adapter, tracer trace.Tracer) Adapter {
	if tracer == nil {
		return a
	}
	return &tracedAdapter{Adapter: a, tracer: tracer}
}

func (t *tracedAdapter) Submit(ctx context.Context, req domain.RequestSpec) (string, error) {
	ctx, span := t.tracer.Start(ctx, "provider.submit", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("provider.name", t.Name()),
		attribute.String("job.kind", string(t.Kind())),
		attribute.String("job.aspect_ratio", req.AspectRatio),
	)
	defer span.End()

	id, err := t.Adapter.Submit(ctx, req)
	if err != nil {
		recordProviderError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("job.external_id", id))
	return id, nil
}

func (t *tracedAdapter) FetchStatus(ctx context.Context, externalJobID string) (Outcome, error) {
	ctx, span := t.tracer.Start(ctx, "provider.fetch_status", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("provider.name", t.Name()),
		attribute.String("job.external_id", externalJobID),
	)
	defer span.End()

	outcome, err := t.Adapter.FetchStatus(ctx, externalJobID)
	if err != nil {
		recordProviderError(span, err)
		return outcome, err
	}
	span.SetAttributes(attribute.String("job.outcome", outcome.Status.String()))
	return outcome, nil
}

func recordProviderError(span trace.Span, err error) {
	span.RecordError(err)
	if kind := KindOf(err); kind != "" {
		span.SetAttributes(attribute.String("provider.error_kind", string(kind)))
	}
	span.SetStatus(codes.Error, "provider call failed")
}
