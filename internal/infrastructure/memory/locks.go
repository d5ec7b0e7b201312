package memory

import (
	"context"
	"sync"
)

// lockTable hands out exclusive row locks keyed by table and ID. A lock is a
// one-slot channel so waiting can be abandoned when the context ends. A slot
// lives only while some transaction holds or waits for it.
type lockTable struct {
	mu   sync.Mutex
	rows map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int // holders plus waiters, guarded by lockTable.mu
}

func newLockTable() *lockTable {
	return &lockTable{rows: make(map[string]*lockSlot)}
}

func (t *lockTable) ref(key string) *lockSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.rows[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		t.rows[key] = s
	}
	s.refs++
	return s
}

func (t *lockTable) unref(key string, s *lockSlot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(t.rows, key)
	}
}

func (t *lockTable) acquire(ctx context.Context, key string) error {
	s := t.ref(key)
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.unref(key, s)
		return ctx.Err()
	}
}

func (t *lockTable) release(key string) {
	t.mu.Lock()
	s, ok := t.rows[key]
	t.mu.Unlock()
	if !ok {
		return
	}
	<-s.ch
	t.unref(key, s)
}
