package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SpanPrefix = "UC."

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// Instrumentation holds the tracer, base logger and RED metrics a service
// shares across its use cases.
type Instrumentation struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	pubFailed    observability.Counter   // event_publish_failed_total{event}
}

func NewInstrumentation(service string, tel observability.Observability) *Instrumentation {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	if m == nil {
		m = observability.NopMetrics()
	}
	tracer := tel.Tracer()
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	logger := tel.Logger()
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Instrumentation{
		tracer:       tracer,
		log:          logger.With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
		pubFailed:    m.Counter(observability.MEventPublishFailed),
	}
}

func (in *Instrumentation) Logger() observability.Logger { return in.log }

// Run tracks one use case invocation. End must be called exactly once.
type Run struct {
	in      *Instrumentation
	ctx     context.Context
	span    trace.Span
	logger  observability.Logger
	useCase string
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Start opens the use case span and binds a logger carrying the use case name
// to the returned context.
func (in *Instrumentation) Start(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)
	ctx, logger := logctx.Enrich(ctx, in.log, observability.F("use_case", useCase))
	return ctx, &Run{
		in:      in,
		ctx:     ctx,
		span:    span,
		logger:  logger,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (r *Run) Span() trace.Span             { return r.span }
func (r *Run) Logger() observability.Logger { return r.logger }

// Fail marks the run as failed with a machine-readable status.
func (r *Run) Fail(status string) {
	r.outcome, r.status = "error", status
}

// SetStatus overrides the status text without changing the outcome.
func (r *Run) SetStatus(status string) {
	r.status = status
}

func (r *Run) With(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

// End closes the span, records RED metrics and writes the use_case_done line.
func (r *Run) End(err error) {
	if err != nil && r.outcome == "success" {
		r.Fail(StatusFor(err))
	}
	lat := time.Since(r.start).Seconds()

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.Err(err))
	}

	r.logger.Info("use_case_done", fields...)
}

const (
	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

// Publish hands e to pub once the transaction has committed. Failures are
// logged and counted but never returned.
func (r *Run) Publish(ctx context.Context, pub domoutbox.Publisher, e domoutbox.Event) {
	if pub == nil || e == nil {
		return
	}
	name := e.EventName()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := pub.Publish(pubCtx, e)
	if err != nil {
		outcome = "error"
		r.status = "EVENT_PUBLISH_FAILED"
		r.span.RecordError(err)
		r.in.pubFailed.Add(1, observability.L("event", name))
		r.logger.Warn("event_publish_failed",
			observability.F("event", name),
			observability.Err(err),
		)
	}
	r.in.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", name),
		observability.L("outcome", outcome),
	)
	r.in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", name),
	)
	r.span.AddEvent(name)
}

// StatusFor maps an error to the status text used in logs and span status.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, medicine.ErrNotFound), errors.Is(err, order.ErrNotFound), errors.Is(err, account.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, order.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, medicine.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, account.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, order.ErrInvariantViolation):
		return "INVARIANT_VIOLATION"
	case errors.Is(err, medicine.ErrDuplicateName), errors.Is(err, account.ErrAlreadyExists):
		return "CONFLICT"
	case errors.Is(err, order.ErrInvalidStatusTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, txn.ErrLockTimeout):
		return "LOCK_TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CONTEXT_CANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	default:
		return "ERROR"
	}
}

// ErrValidation marks input rejected before any store is touched.
var ErrValidation = errors.New("validation")

// Validation wraps a domain validation error so callers can match either.
func Validation(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
