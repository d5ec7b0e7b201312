// Package query serves read-only views of the catalog, orders, accounts and
// ledger. Nothing here takes row locks.
package query

import (
	"context"
	"iter"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"

	"github.com/shopspring/decimal"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page selects up to Limit items with an ID strictly greater than After.
type Page struct {
	After int64
	Limit int
}

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// HistorySource yields ledger entries newest first.
type HistorySource interface {
	History(ctx context.Context, medicineID int64) iter.Seq2[ledger.Entry, error]
}

type Service struct {
	medicines medicine.Finder
	orders    order.Finder
	accounts  account.Finder
	ledger    HistorySource
}

func NewService(medicines medicine.Finder, orders order.Finder, accounts account.Finder, history HistorySource) *Service {
	return &Service{medicines: medicines, orders: orders, accounts: accounts, ledger: history}
}

type MedicinePage struct {
	Items []*medicine.Medicine
	// NextCursor is the After value for the next page, zero when there is none.
	NextCursor int64
}

func (s *Service) ListMedicines(ctx context.Context, f medicine.Filter, p Page) (MedicinePage, error) {
	limit := p.limit()
	items, err := s.medicines.List(ctx, f, p.After, limit+1)
	if err != nil {
		return MedicinePage{}, err
	}
	var next int64
	if len(items) > limit {
		items = items[:limit]
		next = items[limit-1].ID
	}
	return MedicinePage{Items: items, NextCursor: next}, nil
}

func (s *Service) GetMedicine(ctx context.Context, id int64) (*medicine.Medicine, error) {
	return s.medicines.Get(ctx, id)
}

type OrderPage struct {
	Items      []*order.Order
	NextCursor int64
}

// ListOrders returns the order history of a customer, oldest first.
func (s *Service) ListOrders(ctx context.Context, customerID int64, p Page) (OrderPage, error) {
	limit := p.limit()
	items, err := s.orders.ListByCustomer(ctx, customerID, p.After, limit+1)
	if err != nil {
		return OrderPage{}, err
	}
	var next int64
	if len(items) > limit {
		items = items[:limit]
		next = items[limit-1].ID
	}
	return OrderPage{Items: items, NextCursor: next}, nil
}

// GetOrder returns an order only to the customer who placed it.
func (s *Service) GetOrder(ctx context.Context, orderID, requesterID int64) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(requesterID) {
		return nil, order.ErrForbidden
	}
	return o, nil
}

type Profile struct {
	CustomerID int64
	Balance    decimal.Decimal
	OrderCount int
}

func (s *Service) Profile(ctx context.Context, customerID int64) (Profile, error) {
	acct, err := s.accounts.Get(ctx, customerID)
	if err != nil {
		return Profile{}, err
	}
	n, err := s.orders.CountByCustomer(ctx, customerID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{CustomerID: customerID, Balance: acct.Balance, OrderCount: n}, nil
}

// LedgerHistory returns up to limit entries of a medicine, newest first.
func (s *Service) LedgerHistory(ctx context.Context, medicineID int64, limit int) ([]ledger.Entry, error) {
	limit = Page{Limit: limit}.limit()
	if _, err := s.medicines.Get(ctx, medicineID); err != nil {
		return nil, err
	}
	out := make([]ledger.Entry, 0, limit)
	for e, err := range s.ledger.History(ctx, medicineID) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
