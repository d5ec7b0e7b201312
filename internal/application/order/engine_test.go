package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/application"
	accountapp "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/application/catalog"
	ledgerapp "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	domain "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

func (p *recordingPublisher) last() domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

type fixture struct {
	store    *memory.Store
	pub      *recordingPublisher
	engine   *Engine
	catalog  *catalog.Service
	accounts *accountapp.Service
	ledger   *ledgerapp.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	tel := observability.Nop()
	return &fixture{
		store:    store,
		pub:      pub,
		engine:   NewEngine(store, pub, tel),
		catalog:  catalog.NewService(store, pub, tel),
		accounts: accountapp.NewService(store, store.Accounts(), tel),
		ledger:   ledgerapp.NewService(store.Ledger(), 2),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) medicine(t *testing.T, name, price string, stock int64) *medicine.Medicine {
	t.Helper()
	m, err := f.catalog.CreateMedicine(context.Background(), catalog.CreateMedicineInput{
		Name:         name,
		Category:     medicine.CategoryTablet,
		Price:        dec(price),
		InitialStock: stock,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) account(t *testing.T, customerID int64, balance string) {
	t.Helper()
	_, err := f.accounts.Open(context.Background(), customerID, dec(balance))
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, medicineID int64) int64 {
	t.Helper()
	m, err := f.store.Medicines().Get(context.Background(), medicineID)
	require.NoError(t, err)
	return m.Stock
}

func (f *fixture) balance(t *testing.T, customerID int64) string {
	t.Helper()
	b, err := f.accounts.Balance(context.Background(), customerID)
	require.NoError(t, err)
	return b.StringFixed(2)
}

func (f *fixture) entries(t *testing.T, medicineID int64) []ledger.Entry {
	t.Helper()
	var out []ledger.Entry
	for e, err := range f.ledger.History(context.Background(), medicineID) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func (f *fixture) assertReconciled(t *testing.T, medicineID int64) {
	t.Helper()
	r, err := f.ledger.Reconcile(context.Background(), medicineID)
	require.NoError(t, err)
	assert.True(t, r.Balanced(), "stock %d drifted from ledger sum %d", r.Stock, r.LedgerSum)
}

func TestCreateOrder_DebitsStockAndBalance(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")

	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3, Prescription: "rx-42"})
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, "15.00", o.TotalPrice.StringFixed(2))
	assert.Equal(t, "rx-42", o.Prescription)
	assert.Equal(t, int64(7), f.stock(t, med.ID))
	assert.Equal(t, "85.00", f.balance(t, 1))

	entries := f.entries(t, med.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(-3), entries[0].Change)
	assert.Equal(t, ledger.ReasonInitialSale, entries[0].Reason)
	require.NotNil(t, entries[0].OrderID)
	assert.Equal(t, o.ID, *entries[0].OrderID)
	assert.Equal(t, ledger.ReasonInitialStock, entries[1].Reason)
	f.assertReconciled(t, med.ID)

	placed, ok := f.pub.last().(domain.PlacedEvent)
	require.True(t, ok)
	assert.Equal(t, o.ID, placed.OrderID)
	assert.Equal(t, int64(7), placed.RemainingStock)
}

func TestEditOrder_Increase(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3})
	require.NoError(t, err)

	edited, err := f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: 5, RequesterID: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(5), edited.Quantity)
	assert.Equal(t, "25.00", edited.TotalPrice.StringFixed(2))
	assert.Equal(t, int64(5), f.stock(t, med.ID))
	assert.Equal(t, "75.00", f.balance(t, 1))

	entries := f.entries(t, med.ID)
	require.NotEmpty(t, entries)
	assert.Equal(t, int64(-2), entries[0].Change)
	assert.Equal(t, ledger.ReasonOrderQuantityUpdate, entries[0].Reason)
	f.assertReconciled(t, med.ID)

	changed, ok := f.pub.last().(domain.QuantityChangedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(3), changed.OldQuantity)
	assert.Equal(t, "10.00", changed.PriceDelta.StringFixed(2))
}

func TestEditOrder_DecreaseRefunds(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 6})
	require.NoError(t, err)

	_, err = f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: 2, RequesterID: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(8), f.stock(t, med.ID))
	assert.Equal(t, "90.00", f.balance(t, 1))
	assert.Equal(t, int64(4), f.entries(t, med.ID)[0].Change)
	f.assertReconciled(t, med.ID)
}

func TestEditOrder_UsesStockHeldByTheOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "1.00", 5)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3})
	require.NoError(t, err)

	// 2 left on the shelf plus the 3 already held.
	_, err = f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: 5, RequesterID: 1})
	require.NoError(t, err)
	assert.Zero(t, f.stock(t, med.ID))

	_, err = f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: 6, RequesterID: 1})
	assert.ErrorIs(t, err, medicine.ErrInsufficientStock)
	assert.Zero(t, f.stock(t, med.ID))
}

func TestEditOrder_SameQuantityIsNoop(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3})
	require.NoError(t, err)

	_, err = f.catalog.UpdatePrice(ctx, med.ID, dec("9.00"))
	require.NoError(t, err)
	published := len(f.pub.names())
	entries := len(f.entries(t, med.ID))

	edited, err := f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: 3, RequesterID: 1})
	require.NoError(t, err)

	assert.Equal(t, "15.00", edited.TotalPrice.StringFixed(2), "an unchanged quantity is not repriced")
	assert.Equal(t, "85.00", f.balance(t, 1))
	assert.Equal(t, int64(7), f.stock(t, med.ID))
	assert.Len(t, f.entries(t, med.ID), entries)
	assert.Len(t, f.pub.names(), published)
}

func TestEditOrder_RepricesAtCurrentPrice(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = f.catalog.UpdatePrice(ctx, med.ID, dec("6.00"))
	require.NoError(t, err)

	edited, err := f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: 3, RequesterID: 1})
	require.NoError(t, err)
	assert.Equal(t, "18.00", edited.TotalPrice.StringFixed(2))
	assert.Equal(t, "82.00", f.balance(t, 1))
}

func TestCreateOrder_InsufficientStockLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	f.account(t, 2, "100")
	_, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 5})
	require.NoError(t, err)
	published := len(f.pub.names())

	_, err = f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 2, MedicineID: med.ID, Quantity: 6})
	require.Error(t, err)
	assert.ErrorIs(t, err, medicine.ErrInsufficientStock)

	var ise *medicine.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, int64(6), ise.Requested)
	assert.Equal(t, int64(5), ise.Available)

	assert.Equal(t, int64(5), f.stock(t, med.ID))
	assert.Equal(t, "100.00", f.balance(t, 2))
	assert.Len(t, f.pub.names(), published)
	f.assertReconciled(t, med.ID)
}

func TestCreateOrder_InsufficientBalanceReportsShortfall(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "10")

	_, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrInsufficientBalance)

	var ibe *account.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.Equal(t, "5.00", ibe.Shortfall.StringFixed(2))

	assert.Equal(t, int64(10), f.stock(t, med.ID))
	assert.Equal(t, "10.00", f.balance(t, 1))
	assert.Len(t, f.entries(t, med.ID), 1)
}

func TestCreateOrder_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")

	tests := []struct {
		name    string
		in      CreateOrderInput
		wantErr error
	}{
		{name: "zero quantity", in: CreateOrderInput{CustomerID: 1, MedicineID: med.ID}, wantErr: domain.ErrInvalidQuantity},
		{name: "missing customer", in: CreateOrderInput{MedicineID: med.ID, Quantity: 1}, wantErr: domain.ErrInvalidCustomer},
		{name: "missing medicine", in: CreateOrderInput{CustomerID: 1, Quantity: 1}, wantErr: domain.ErrInvalidMedicine},
		{name: "unknown medicine", in: CreateOrderInput{CustomerID: 1, MedicineID: 999, Quantity: 1}, wantErr: medicine.ErrNotFound},
		{name: "unknown account", in: CreateOrderInput{CustomerID: 999, MedicineID: med.ID, Quantity: 1}, wantErr: account.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateOrder(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, int64(10), f.stock(t, med.ID))
}

func TestCreateThenDelete_RestoresEverything(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "2.50", 10)
	f.account(t, 1, "50")

	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 4})
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteOrder(ctx, o.ID, 1))

	assert.Equal(t, int64(10), f.stock(t, med.ID))
	assert.Equal(t, "50.00", f.balance(t, 1))
	_, err = f.store.Orders().Get(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	entries := f.entries(t, med.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(4), entries[0].Change)
	f.assertReconciled(t, med.ID)

	removed, ok := f.pub.last().(domain.RemovedEvent)
	require.True(t, ok)
	assert.True(t, removed.Refunded)

	err = f.engine.DeleteOrder(ctx, o.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteOrder_DeliveredIsNotRefunded(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = f.engine.AdvanceStatus(ctx, o.ID, domain.StatusDelivered)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteOrder(ctx, o.ID, 1))

	assert.Equal(t, int64(7), f.stock(t, med.ID))
	assert.Equal(t, "85.00", f.balance(t, 1))
	assert.Len(t, f.entries(t, med.ID), 2)

	removed, ok := f.pub.last().(domain.RemovedEvent)
	require.True(t, ok)
	assert.False(t, removed.Refunded)
}

func TestOrderOwnership(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	f.account(t, 2, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 3})
	require.NoError(t, err)

	_, err = f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: 4, RequesterID: 2})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	err = f.engine.DeleteOrder(ctx, o.ID, 2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, int64(7), f.stock(t, med.ID))
	assert.Equal(t, "85.00", f.balance(t, 1))
	assert.Equal(t, "100.00", f.balance(t, 2))
}

func TestAdvanceStatus(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 1})
	require.NoError(t, err)

	advanced, err := f.engine.AdvanceStatus(ctx, o.ID, domain.StatusProcessed)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, advanced.Status)

	changed, ok := f.pub.last().(domain.StatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, changed.From)
	assert.Equal(t, domain.StatusProcessed, changed.To)

	_, err = f.engine.AdvanceStatus(ctx, o.ID, domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	_, err = f.engine.AdvanceStatus(ctx, o.ID, domain.Status("Shipped"))
	assert.ErrorIs(t, err, application.ErrValidation)

	stored, err := f.store.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, stored.Status)
	assert.Equal(t, int64(9), f.stock(t, med.ID))
}

func TestPublishFailureDoesNotFailTheOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "5.00", 10)
	f.account(t, 1, "100")
	f.pub.err = errors.New("broker down")

	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 2})
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
	assert.Equal(t, int64(8), f.stock(t, med.ID))
}

func TestConcurrentOrders_NeverOversell(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "1.00", 20)
	const customers = 5
	for c := int64(1); c <= customers; c++ {
		f.account(t, c, "6")
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(customerID int64) {
			defer wg.Done()
			_, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: customerID, MedicineID: med.ID, Quantity: 1})
			if err == nil {
				succeeded.Add(1)
				return
			}
			if !errors.Is(err, medicine.ErrInsufficientStock) && !errors.Is(err, account.ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i%customers) + 1)
	}
	wg.Wait()

	stock := f.stock(t, med.ID)
	assert.GreaterOrEqual(t, stock, int64(0))
	assert.Equal(t, int64(20), succeeded.Load()+stock)

	var spent decimal.Decimal
	for c := int64(1); c <= customers; c++ {
		b, err := f.accounts.Balance(ctx, c)
		require.NoError(t, err)
		assert.False(t, b.IsNegative())
		spent = spent.Add(dec("6").Sub(b))
	}
	assert.Equal(t, decimal.NewFromInt(succeeded.Load()).StringFixed(2), spent.StringFixed(2))
	f.assertReconciled(t, med.ID)
}

func TestConcurrentEditsOnOneOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "1.00", 10)
	f.account(t, 1, "100")
	o, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for q := int64(1); q <= 10; q++ {
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			_, _ = f.engine.EditOrder(ctx, EditOrderInput{OrderID: o.ID, NewQuantity: q, RequesterID: 1})
		}(q)
	}
	wg.Wait()

	stored, err := f.store.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10)-stored.Quantity, f.stock(t, med.ID))
	assert.Equal(t, dec("100").Sub(stored.TotalPrice).StringFixed(2), f.balance(t, 1))
	f.assertReconciled(t, med.ID)
}

func TestReconcileDuringConcurrentOrders(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.medicine(t, "Paracetamol", "1.00", 1000)
	const workers, perWorker = 4, 100
	for c := int64(1); c <= workers; c++ {
		f.account(t, c, "1000")
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for c := int64(1); c <= workers; c++ {
		wg.Add(1)
		go func(c int64) {
			defer wg.Done()
			for range perWorker {
				_, err := f.engine.CreateOrder(ctx, CreateOrderInput{CustomerID: c, MedicineID: med.ID, Quantity: 1})
				assert.NoError(t, err)
			}
		}(c)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	var checks, drifted int
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		r, err := f.ledger.Reconcile(ctx, med.ID)
		require.NoError(t, err)
		checks++
		if !r.Balanced() {
			drifted++
		}
	}
	assert.Zero(t, drifted, "drift reported in %d of %d checks", drifted, checks)
	assert.Equal(t, int64(1000-workers*perWorker), f.stock(t, med.ID))
}
