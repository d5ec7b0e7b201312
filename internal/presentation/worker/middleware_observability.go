package workerpresentation

import (
	"context"
	"strconv"

	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EventContext binds a logger for one event delivery. Lines carry a fresh
// delivery_id, the event name, the aggregate ID for keyed events and the
// trace/span IDs of the publishing span when it was sampled into the context.
func EventContext(ctx context.Context, base observability.Logger, e domoutbox.Event, extra ...observability.Field) context.Context {
	fields := make([]observability.Field, 0, 5+len(extra))
	fields = append(fields,
		observability.F("delivery_id", uuid.NewString()),
		observability.F("event", e.EventName()),
	)
	if k, ok := e.(domoutbox.Keyed); ok {
		fields = append(fields, observability.F("aggregate_id", strconv.FormatInt(k.AggregateID(), 10)))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, extra...)

	ctx, _ = logctx.Enrich(ctx, base, fields...)
	return ctx
}
