package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
)

type medicineFinder struct{ s *Store }

func (f medicineFinder) Get(_ context.Context, id int64) (*medicine.Medicine, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	m, ok := f.s.medicines[id]
	if !ok {
		return nil, medicine.ErrNotFound
	}
	return m.Clone(), nil
}

func (f medicineFinder) List(_ context.Context, filter medicine.Filter, after int64, limit int) ([]*medicine.Medicine, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	out := make([]*medicine.Medicine, 0, max(limit, 0))
	for _, m := range f.s.medicines {
		if m.ID > after && filter.Match(m) {
			out = append(out, m.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *medicine.Medicine) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type accountFinder struct{ s *Store }

func (f accountFinder) Get(_ context.Context, customerID int64) (*account.Account, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	a, ok := f.s.accounts[customerID]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a.Clone(), nil
}

type orderFinder struct{ s *Store }

func (f orderFinder) Get(_ context.Context, id int64) (*order.Order, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	o, ok := f.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (f orderFinder) ListByCustomer(_ context.Context, customerID, after int64, limit int) ([]*order.Order, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	out := make([]*order.Order, 0, max(limit, 0))
	for _, o := range f.s.orders {
		if o.CustomerID == customerID && o.ID > after {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *order.Order) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f orderFinder) CountByCustomer(_ context.Context, customerID int64) (int, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	n := 0
	for _, o := range f.s.orders {
		if o.CustomerID == customerID {
			n++
		}
	}
	return n, nil
}

type ledgerFinder struct{ s *Store }

func (f ledgerFinder) ListByMedicine(_ context.Context, medicineID, before int64, limit int) ([]ledger.Entry, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	list := f.s.entries[medicineID]
	out := make([]ledger.Entry, 0, max(limit, 0))
	for i := len(list) - 1; i >= 0; i-- {
		e := list[i]
		if before > 0 && e.ID >= before {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f ledgerFinder) BalanceOf(_ context.Context, medicineID int64) (ledger.Balance, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	m, ok := f.s.medicines[medicineID]
	if !ok {
		return ledger.Balance{}, medicine.ErrNotFound
	}
	b := ledger.Balance{MedicineID: medicineID, Stock: m.Stock}
	for _, e := range f.s.entries[medicineID] {
		b.Sum += e.Change
	}
	return b, nil
}

func (f ledgerFinder) SumByMedicine(_ context.Context, medicineID int64) (int64, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	var sum int64
	for _, e := range f.s.entries[medicineID] {
		sum += e.Change
	}
	return sum, nil
}
