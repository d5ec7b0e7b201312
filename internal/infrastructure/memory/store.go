// Package memory keeps the four pharmacy tables in process memory. It gives
// the same row-locking guarantees as the postgres store and backs tests and
// local runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"
)

const DefaultLockTimeout = 5 * time.Second

type Store struct {
	mu         sync.RWMutex
	medicines  map[int64]*medicine.Medicine
	names      map[string]int64
	shortNames map[string]int64
	accounts   map[int64]*account.Account
	orders     map[int64]*order.Order
	entries    map[int64][]ledger.Entry // by medicine, ascending ID

	nextMedicineID atomic.Int64
	nextOrderID    atomic.Int64
	nextEntryID    atomic.Int64

	locks       *lockTable
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for one row lock.
// Zero waits until the context ends.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		medicines:   make(map[int64]*medicine.Medicine),
		names:       make(map[string]int64),
		shortNames:  make(map[string]int64),
		accounts:    make(map[int64]*account.Account),
		orders:      make(map[int64]*order.Order),
		entries:     make(map[int64][]ledger.Entry),
		locks:       newLockTable(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ txn.Manager = (*Store)(nil)

// Do runs fn with buffered writes. They become visible together when fn
// returns nil and are discarded otherwise. Row locks are released last.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx txn.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	defer t.release()

	if err := fn(ctx, t); err != nil {
		t.done = true
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.done = true

	for id, m := range t.medicines {
		if prev, ok := s.medicines[id]; ok {
			delete(s.names, prev.Name)
			if prev.ShortName != nil {
				delete(s.shortNames, *prev.ShortName)
			}
		}
		s.medicines[id] = m
		s.names[m.Name] = id
		if m.ShortName != nil {
			s.shortNames[*m.ShortName] = id
		}
	}
	for id, a := range t.accounts {
		s.accounts[id] = a
	}
	for id, o := range t.orders {
		s.orders[id] = o
	}
	for id := range t.deleted {
		delete(s.orders, id)
	}
	for _, e := range t.entries {
		list := append(s.entries[e.MedicineID], e)
		if n := len(list); n > 1 && list[n-2].ID > e.ID {
			slices.SortFunc(list, func(a, b ledger.Entry) int { return cmp.Compare(a.ID, b.ID) })
		}
		s.entries[e.MedicineID] = list
	}
}

func (s *Store) Medicines() medicine.Finder { return medicineFinder{s} }
func (s *Store) Accounts() account.Finder   { return accountFinder{s} }
func (s *Store) Orders() order.Finder       { return orderFinder{s} }
func (s *Store) Ledger() ledger.Finder      { return ledgerFinder{s} }

// Ping reports readiness; the memory store is always ready.
func (s *Store) Ping(context.Context) error { return nil }
