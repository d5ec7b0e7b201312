package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability/logctx"

	"go.opentelemetry.io/otel/trace"
)

const componentOutbox = "outbox"

var ErrStopped = errors.New("outbox: bus stopped")

// Bus is an in-memory event bus that fans committed events out to
// subscribers. It is not durable: events still queued when the process dies
// are lost.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]domoutbox.Handler

	qmu     sync.RWMutex // guards queue close against Publish
	queue   chan queued
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	concurrency    int
	handlerTimeout time.Duration
	log            observability.Logger
}

// queued keeps the publisher's span so handlers continue the same trace.
type queued struct {
	event domoutbox.Event
	span  trace.SpanContext
}

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan queued, n)
		}
	}
}

// WithConcurrency caps how many handlers of one event run at once.
func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

func NewBus(tel observability.Observability, opts ...Option) *Bus {
	if tel == nil {
		tel = observability.Nop()
	}
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		queue:          make(chan queued, 1024),
		done:           make(chan struct{}),
		concurrency:    8,
		handlerTimeout: 30 * time.Second,
		log:            tel.Logger().With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events and waits until queued ones have been handled or
// ctx ends, whichever comes first.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.qmu.Lock()
		b.stopped = true
		close(b.queue)
		b.qmu.Unlock()

		if b.cancel != nil {
			select {
			case <-b.done:
			case <-ctx.Done():
				logctx.FromOr(ctx, b.log).Warn("event_bus_drain_aborted",
					observability.F("pending", len(b.queue)),
				)
			}
			b.cancel()
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.qmu.RLock()
	defer b.qmu.RUnlock()
	if b.stopped {
		return ErrStopped
	}

	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))
	select {
	case b.queue <- queued{event: e, span: trace.SpanContextFromContext(ctx)}:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted",
			observability.Err(ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-b.queue:
			if !ok {
				return
			}
			b.fanout(ctx, q)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, q queued) {
	name := q.event.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	ctx = context.WithoutCancel(ctx)
	if q.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, q.span)
	}
	ctx = logctx.With(ctx, logger)

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
			defer cancel()
			if err := h(hctx, q.event); err != nil {
				logger.Warn("event_handler_error",
					observability.Err(err),
				)
			}
		}()
	}

	wg.Wait()

	logger.Debug("event_fanned_out",
		observability.F("handlers", len(handlers)),
	)
}
