package app

import (
	"context"
	"sync"
	"testing"
	"time"

	appcatalog "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/catalog"
	apporder "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/config"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/memory"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu     sync.Mutex
	events []string
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		for _, h := range m.Headers {
			if h.Key == "event" {
				w.events = append(w.events, string(h.Value))
			}
		}
	}
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testConfig() config.Config {
	return config.Config{
		ServiceName:       "pharmacy-test",
		StoreBackend:      config.BackendMemory,
		LowStockThreshold: 2,
		LedgerPageSize:    10,
		TxLockTimeout:     time.Second,
	}
}

func TestContainer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	writer := &memWriter{}
	c, err := NewContainer(ctx, testConfig(), nil, WithKafkaWriter(writer))
	require.NoError(t, err)
	c.Start(ctx)

	med, err := c.Catalog.CreateMedicine(ctx, appcatalog.CreateMedicineInput{
		Name:         "Paracetamol",
		Category:     medicine.CategoryTablet,
		Price:        decimal.RequireFromString("5.00"),
		InitialStock: 10,
	})
	require.NoError(t, err)
	_, err = c.Accounts.Open(ctx, 1, decimal.NewFromInt(100))
	require.NoError(t, err)

	o, err := c.Orders.CreateOrder(ctx, apporder.CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = c.Orders.AdvanceStatus(ctx, o.ID, order.StatusProcessed)
	require.NoError(t, err)

	rec, err := c.Ledger.Reconcile(ctx, med.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())

	profile, err := c.Query.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "85.00", profile.Balance.StringFixed(2))
	assert.Equal(t, 1, profile.OrderCount)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, c.Close(closeCtx))

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Equal(t, []string{medicine.EventStockChanged, order.EventPlaced, order.EventStatusChanged}, writer.events)
	assert.True(t, writer.closed)
}

func TestContainer_WithStore(t *testing.T) {
	store := memory.NewStore()
	c, err := NewContainer(context.Background(), testConfig(), nil, WithStore(store))
	require.NoError(t, err)
	assert.Same(t, store, c.Store)
	assert.Equal(t, int64(2), c.Watch.Threshold())
	require.NoError(t, c.Close(context.Background()))
}
