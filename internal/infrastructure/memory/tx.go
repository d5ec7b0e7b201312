package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"
)

var errNotLocked = errors.New("memory: row written without holding its lock")

type tx struct {
	store *Store
	held  []string
	owned map[string]struct{}
	done  bool

	medicines map[int64]*medicine.Medicine
	accounts  map[int64]*account.Account
	orders    map[int64]*order.Order
	deleted   map[int64]struct{}
	entries   []ledger.Entry
}

func newTx(s *Store) *tx {
	return &tx{
		store:     s,
		owned:     make(map[string]struct{}),
		medicines: make(map[int64]*medicine.Medicine),
		accounts:  make(map[int64]*account.Account),
		orders:    make(map[int64]*order.Order),
		deleted:   make(map[int64]struct{}),
	}
}

func (t *tx) Medicines() medicine.Repository { return medicineRepo{t} }
func (t *tx) Accounts() account.Repository   { return accountRepo{t} }
func (t *tx) Orders() order.Repository       { return orderRepo{t} }
func (t *tx) Ledger() ledger.Repository      { return ledgerRepo{t} }

func (t *tx) lock(ctx context.Context, key string) error {
	if t.done {
		return txn.ErrClosed
	}
	if _, ok := t.owned[key]; ok {
		return nil
	}
	lockCtx := ctx
	if t.store.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, t.store.lockTimeout)
		defer cancel()
	}
	if err := t.store.locks.acquire(lockCtx, key); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", txn.ErrLockTimeout, key)
	}
	t.owned[key] = struct{}{}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) holds(key string) error {
	if t.done {
		return txn.ErrClosed
	}
	if _, ok := t.owned[key]; !ok {
		return fmt.Errorf("%w: %s", errNotLocked, key)
	}
	return nil
}

func (t *tx) release() {
	t.done = true
	for i := len(t.held) - 1; i >= 0; i-- {
		t.store.locks.release(t.held[i])
	}
	t.held = nil
}

func medicineKey(id int64) string { return "medicine:" + strconv.FormatInt(id, 10) }
func accountKey(id int64) string  { return "account:" + strconv.FormatInt(id, 10) }
func orderKey(id int64) string    { return "order:" + strconv.FormatInt(id, 10) }

type medicineRepo struct{ t *tx }

func (r medicineRepo) GetForUpdate(ctx context.Context, id int64) (*medicine.Medicine, error) {
	if err := r.t.lock(ctx, medicineKey(id)); err != nil {
		return nil, err
	}
	if m, ok := r.t.medicines[id]; ok {
		return m.Clone(), nil
	}
	r.t.store.mu.RLock()
	defer r.t.store.mu.RUnlock()
	m, ok := r.t.store.medicines[id]
	if !ok {
		return nil, medicine.ErrNotFound
	}
	return m.Clone(), nil
}

// Insert locks the name and short name first so two transactions cannot
// claim the same one.
func (r medicineRepo) Insert(ctx context.Context, m *medicine.Medicine) error {
	if err := r.t.lock(ctx, "medicine-name:"+m.Name); err != nil {
		return err
	}
	if m.ShortName != nil {
		if err := r.t.lock(ctx, "medicine-short-name:"+*m.ShortName); err != nil {
			return err
		}
	}
	if r.taken(m) {
		return medicine.ErrDuplicateName
	}

	m.ID = r.t.store.nextMedicineID.Add(1)
	if err := r.t.lock(ctx, medicineKey(m.ID)); err != nil {
		return err
	}
	r.t.medicines[m.ID] = m.Clone()
	return nil
}

func (r medicineRepo) taken(m *medicine.Medicine) bool {
	for _, pending := range r.t.medicines {
		if pending.Name == m.Name || (m.ShortName != nil && pending.ShortName != nil && *pending.ShortName == *m.ShortName) {
			return true
		}
	}
	r.t.store.mu.RLock()
	defer r.t.store.mu.RUnlock()
	if _, ok := r.t.store.names[m.Name]; ok {
		return true
	}
	if m.ShortName != nil {
		if _, ok := r.t.store.shortNames[*m.ShortName]; ok {
			return true
		}
	}
	return false
}

func (r medicineRepo) Update(_ context.Context, m *medicine.Medicine) error {
	if err := r.t.holds(medicineKey(m.ID)); err != nil {
		return err
	}
	if m.Stock < 0 {
		return medicine.ErrInvalidStock
	}
	r.t.medicines[m.ID] = m.Clone()
	return nil
}

type accountRepo struct{ t *tx }

func (r accountRepo) GetForUpdate(ctx context.Context, customerID int64) (*account.Account, error) {
	if err := r.t.lock(ctx, accountKey(customerID)); err != nil {
		return nil, err
	}
	if a, ok := r.t.accounts[customerID]; ok {
		return a.Clone(), nil
	}
	r.t.store.mu.RLock()
	defer r.t.store.mu.RUnlock()
	a, ok := r.t.store.accounts[customerID]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a.Clone(), nil
}

func (r accountRepo) Insert(ctx context.Context, a *account.Account) error {
	if err := r.t.lock(ctx, accountKey(a.CustomerID)); err != nil {
		return err
	}
	if _, ok := r.t.accounts[a.CustomerID]; ok {
		return account.ErrAlreadyExists
	}
	r.t.store.mu.RLock()
	_, exists := r.t.store.accounts[a.CustomerID]
	r.t.store.mu.RUnlock()
	if exists {
		return account.ErrAlreadyExists
	}
	r.t.accounts[a.CustomerID] = a.Clone()
	return nil
}

func (r accountRepo) Update(_ context.Context, a *account.Account) error {
	if err := r.t.holds(accountKey(a.CustomerID)); err != nil {
		return err
	}
	if a.Balance.IsNegative() {
		return account.ErrNegativeBalance
	}
	r.t.accounts[a.CustomerID] = a.Clone()
	return nil
}

type orderRepo struct{ t *tx }

func (r orderRepo) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	if err := r.t.lock(ctx, orderKey(id)); err != nil {
		return nil, err
	}
	if _, gone := r.t.deleted[id]; gone {
		return nil, order.ErrNotFound
	}
	if o, ok := r.t.orders[id]; ok {
		return o.Clone(), nil
	}
	r.t.store.mu.RLock()
	defer r.t.store.mu.RUnlock()
	o, ok := r.t.store.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (r orderRepo) Insert(ctx context.Context, o *order.Order) error {
	o.ID = r.t.store.nextOrderID.Add(1)
	if err := r.t.lock(ctx, orderKey(o.ID)); err != nil {
		return err
	}
	r.t.orders[o.ID] = o.Clone()
	return nil
}

func (r orderRepo) Update(_ context.Context, o *order.Order) error {
	if err := r.t.holds(orderKey(o.ID)); err != nil {
		return err
	}
	if _, gone := r.t.deleted[o.ID]; gone {
		return order.ErrNotFound
	}
	r.t.orders[o.ID] = o.Clone()
	return nil
}

func (r orderRepo) Delete(_ context.Context, id int64) error {
	if err := r.t.holds(orderKey(id)); err != nil {
		return err
	}
	delete(r.t.orders, id)
	r.t.deleted[id] = struct{}{}
	return nil
}

type ledgerRepo struct{ t *tx }

func (r ledgerRepo) Append(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if r.t.done {
		return ledger.Entry{}, txn.ErrClosed
	}
	e.ID = r.t.store.nextEntryID.Add(1)
	r.t.entries = append(r.t.entries, e)
	return e, nil
}
