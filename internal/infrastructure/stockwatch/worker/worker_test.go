package worker

import (
	"context"
	"sync"
	"testing"

	appstockwatch "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/stockwatch"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (s *captureSubscriber) Subscribe(name string, h domoutbox.Handler) {
	s.handlers[name] = h
}

type alertCounter struct {
	mu  sync.Mutex
	ids []string
}

func (c *alertCounter) Add(_ float64, labels ...observability.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range labels {
		if l.Key == "medicine_id" {
			c.ids = append(c.ids, l.Value)
		}
	}
}

func (c *alertCounter) Bind(...observability.Label) observability.BoundCounter {
	return observability.NopCounter().Bind()
}

type alertMetrics struct{ alerts *alertCounter }

func (m alertMetrics) Counter(k observability.MetricKey) observability.Counter {
	if k == observability.MLowStockAlerts {
		return m.alerts
	}
	return observability.NopCounter()
}

func (alertMetrics) Histogram(observability.MetricKey) observability.Histogram {
	return observability.NopHistogram()
}

type alertTel struct{ metrics alertMetrics }

func (alertTel) Tracer() observability.Tracer     { return observability.NopTracer() }
func (alertTel) Logger() observability.Logger     { return observability.NopLogger() }
func (t alertTel) Metrics() observability.Metrics { return t.metrics }

func TestWorker_AlertsOnLowStockEvents(t *testing.T) {
	ctx := context.Background()
	alerts := &alertCounter{}
	tel := alertTel{metrics: alertMetrics{alerts: alerts}}
	sub := &captureSubscriber{handlers: make(map[string]domoutbox.Handler)}

	New(sub, appstockwatch.NewService(2, tel), tel).Start()
	require.Len(t, sub.handlers, 3)

	require.NoError(t, sub.handlers[order.EventPlaced](ctx, order.PlacedEvent{MedicineID: 1, RemainingStock: 2}))
	require.NoError(t, sub.handlers[order.EventQuantityChanged](ctx, order.QuantityChangedEvent{MedicineID: 2, RemainingStock: 9}))
	require.NoError(t, sub.handlers[medicine.EventStockChanged](ctx, medicine.StockChangedEvent{MedicineID: 3, Stock: 0}))
	require.NoError(t, sub.handlers[order.EventPlaced](ctx, order.RemovedEvent{MedicineID: 4}))

	assert.Equal(t, []string{"1", "3"}, alerts.ids)
}

func TestWorker_StartWithoutServiceIsNoop(t *testing.T) {
	sub := &captureSubscriber{handlers: make(map[string]domoutbox.Handler)}
	New(sub, nil, nil).Start()
	assert.Empty(t, sub.handlers)
}
