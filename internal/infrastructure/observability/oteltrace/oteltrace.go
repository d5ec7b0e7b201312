package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a Tracer backed by the global provider. Call Setup first to
// export spans.
func New(name string) observability.Tracer {
	if name == "" {
		name = "pharmacy"
	}
	return &tracer{t: otel.Tracer(name)}
}

// NewFromProvider binds the tracer to tp instead of the global provider.
func NewFromProvider(tp trace.TracerProvider, name string) observability.Tracer {
	return &tracer{t: tp.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
