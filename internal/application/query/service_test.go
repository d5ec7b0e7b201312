package query

import (
	"context"
	"fmt"
	"testing"

	accountapp "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/application/catalog"
	ledgerapp "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/ledger"
	orderapp "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	query   *Service
	catalog *catalog.Service
	orders  *orderapp.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	tel := observability.Nop()
	accounts := accountapp.NewService(store, store.Accounts(), tel)
	for c := int64(1); c <= 2; c++ {
		_, err := accounts.Open(context.Background(), c, decimal.NewFromInt(1000))
		require.NoError(t, err)
	}
	history := ledgerapp.NewService(store.Ledger(), 3)
	return &fixture{
		query:   NewService(store.Medicines(), store.Orders(), store.Accounts(), history),
		catalog: catalog.NewService(store, nil, tel),
		orders:  orderapp.NewEngine(store, nil, tel),
	}
}

func (f *fixture) seedMedicines(t *testing.T, n int) []*medicine.Medicine {
	t.Helper()
	out := make([]*medicine.Medicine, 0, n)
	for i := 1; i <= n; i++ {
		cat := medicine.CategoryTablet
		if i%2 == 0 {
			cat = medicine.CategorySyrup
		}
		m, err := f.catalog.CreateMedicine(context.Background(), catalog.CreateMedicineInput{
			Name:         fmt.Sprintf("Medicine %02d", i),
			Category:     cat,
			Price:        decimal.NewFromInt(int64(i)),
			InitialStock: int64(i % 3),
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestListMedicines_Pagination(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seeded := f.seedMedicines(t, 5)

	page, err := f.query.ListMedicines(ctx, medicine.Filter{}, Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, seeded[0].ID, page.Items[0].ID)
	assert.Equal(t, seeded[1].ID, page.NextCursor)

	var all []int64
	cursor := int64(0)
	for {
		page, err := f.query.ListMedicines(ctx, medicine.Filter{}, Page{After: cursor, Limit: 2})
		require.NoError(t, err)
		for _, m := range page.Items {
			all = append(all, m.ID)
		}
		if page.NextCursor == 0 {
			break
		}
		cursor = page.NextCursor
	}
	require.Len(t, all, 5)
	for i, m := range seeded {
		assert.Equal(t, m.ID, all[i])
	}
}

func TestListMedicines_Filter(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedMedicines(t, 6)

	page, err := f.query.ListMedicines(ctx, medicine.Filter{Category: medicine.CategorySyrup}, Page{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Zero(t, page.NextCursor)

	page, err = f.query.ListMedicines(ctx, medicine.Filter{InStockOnly: true}, Page{})
	require.NoError(t, err)
	for _, m := range page.Items {
		assert.Positive(t, m.Stock)
	}

	page, err = f.query.ListMedicines(ctx, medicine.Filter{NameContains: "medicine 04"}, Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Medicine 04", page.Items[0].Name)
}

func TestPage_Limit(t *testing.T) {
	assert.Equal(t, DefaultLimit, Page{}.limit())
	assert.Equal(t, MaxLimit, Page{Limit: 5000}.limit())
	assert.Equal(t, 7, Page{Limit: 7}.limit())
}

func TestOrders_ScopedToCustomer(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.seedMedicines(t, 1)[0]
	_, err := f.catalog.AdjustStock(ctx, med.ID, 10)
	require.NoError(t, err)

	var mine []*order.Order
	for i := 0; i < 3; i++ {
		o, err := f.orders.CreateOrder(ctx, orderapp.CreateOrderInput{CustomerID: 1, MedicineID: med.ID, Quantity: 1})
		require.NoError(t, err)
		mine = append(mine, o)
	}
	theirs, err := f.orders.CreateOrder(ctx, orderapp.CreateOrderInput{CustomerID: 2, MedicineID: med.ID, Quantity: 1})
	require.NoError(t, err)

	page, err := f.query.ListOrders(ctx, 1, Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, mine[0].ID, page.Items[0].ID)
	assert.Equal(t, mine[1].ID, page.NextCursor)

	page, err = f.query.ListOrders(ctx, 1, Page{After: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Zero(t, page.NextCursor)

	got, err := f.query.GetOrder(ctx, mine[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, mine[0].ID, got.ID)

	_, err = f.query.GetOrder(ctx, theirs.ID, 1)
	assert.ErrorIs(t, err, order.ErrForbidden)

	_, err = f.query.GetOrder(ctx, 9999, 1)
	assert.ErrorIs(t, err, order.ErrNotFound)

	profile, err := f.query.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, profile.OrderCount)
	assert.True(t, profile.Balance.LessThan(decimal.NewFromInt(1000)))

	_, err = f.query.Profile(ctx, 77)
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestLedgerHistory(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	med := f.seedMedicines(t, 1)[0]
	for i := 0; i < 4; i++ {
		_, err := f.catalog.AdjustStock(ctx, med.ID, 1)
		require.NoError(t, err)
	}

	entries, err := f.query.LedgerHistory(ctx, med.ID, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Greater(t, entries[0].ID, entries[1].ID)

	entries, err = f.query.LedgerHistory(ctx, med.ID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	_, err = f.query.LedgerHistory(ctx, 404, 10)
	assert.ErrorIs(t, err, medicine.ErrNotFound)
}
