// Package kafka forwards committed domain events from the in-process bus to a
// Kafka topic so other services can follow order and stock changes.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability/logctx"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	componentRelay = "kafka_relay"
	peerKafka      = "kafka"
)

// Writer is the part of *kafka.Writer the relay uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireAll,
	}
}

// Envelope is the JSON document written as the message value.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Relay struct {
	writer Writer
	log    observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
	pubFailed    observability.Counter
}

func NewRelay(writer Writer, tel observability.Observability) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Relay{
		writer:       writer,
		log:          tel.Logger().With(observability.F("component", componentRelay)),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
		pubFailed:    m.Counter(observability.MEventPublishFailed),
	}
}

// Subscribe registers the relay for every named event.
func (r *Relay) Subscribe(sub domoutbox.Subscriber, eventNames ...string) {
	for _, name := range eventNames {
		sub.Subscribe(name, r.Forward)
	}
}

// Forward writes one event. Messages of the same aggregate share a key and so
// land on the same partition in order.
func (r *Relay) Forward(ctx context.Context, e domoutbox.Event) error {
	msg, err := Encode(ctx, e)
	if err != nil {
		return err
	}

	name := e.EventName()
	start := time.Now()
	outcome := "success"
	err = r.writer.WriteMessages(ctx, msg)
	if err != nil {
		outcome = "error"
		r.pubFailed.Add(1, observability.L("event", name))
		logctx.FromOr(ctx, r.log).Warn("kafka_write_failed",
			observability.F("event", name),
			observability.Err(err),
		)
	}
	r.extCounter.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", name),
		observability.L("outcome", outcome),
	)
	r.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", name),
	)
	if err != nil {
		return fmt.Errorf("kafka: write %s: %w", name, err)
	}
	return nil
}

func (r *Relay) Close() error { return r.writer.Close() }

// Encode wraps e in an Envelope and carries the W3C trace context in headers.
func Encode(ctx context.Context, e domoutbox.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}
	value, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Name:       e.EventName(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode envelope: %w", err)
	}

	msg := kafka.Message{
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.EventName())},
		},
	}
	if k, ok := e.(domoutbox.Keyed); ok {
		msg.Key = []byte(strconv.FormatInt(k.AggregateID(), 10))
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}
