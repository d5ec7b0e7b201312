package httppresentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const headerRequestID = "X-Request-ID"

// ObservabilityMiddleware instruments one route:
// - server span continuing any W3C trace context on the request
// - request logger carrying request_id and the server span IDs
// - X-Request-ID echo, generated when absent
// - RED metrics labelled by the route template, never the raw path
// - one http_access line per request
func ObservabilityMiddleware(route string, base observability.Logger, tel observability.Observability) func(http.Handler) http.Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	if base == nil {
		base = tel.Logger()
	}
	prop := otel.GetTextMapPropagator()
	tracer := otel.Tracer("pharmacy.http")
	reqCounter := tel.Metrics().Counter(observability.MHTTPRequests)
	durHistogram := tel.Metrics().Histogram(observability.MHTTPRequestDuration)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", route),
					attribute.String("http.target", r.URL.Path),
					attribute.String("http.user_agent", r.UserAgent()),
				),
			)
			defer span.End()

			rid := r.Header.Get(headerRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(headerRequestID, rid)

			fields := []observability.Field{observability.F("request_id", rid)}
			if sc := span.SpanContext(); sc.IsValid() {
				fields = append(fields,
					observability.F("trace_id", sc.TraceID().String()),
					observability.F("span_id", sc.SpanID().String()),
				)
			}
			ctx, logger := logctx.Enrich(ctx, base, fields...)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			span.SetAttributes(attribute.Int("http.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			labels := []observability.Label{
				observability.L("method", r.Method),
				observability.L("route", route),
				observability.L("status", strconv.Itoa(rec.status)),
			}
			reqCounter.Add(1, labels...)
			durHistogram.Observe(elapsed.Seconds(), labels...)

			logger.Info("http_access",
				observability.F("method", r.Method),
				observability.F("route", route),
				observability.F("path", r.URL.Path),
				observability.F("status", rec.status),
				observability.F("latency_ms", elapsed.Milliseconds()),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
