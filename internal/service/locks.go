package service

import (
	"sort"
	"sync"
)

// AccountLocks serializes mutations per account. Every load-mutate-save
// cycle on an account runs under that account's lock, whether it is a
// ledger operation or a metadata update, so the two services must share
// one set. Locks are acquired in sorted ID order so a transfer can never
// deadlock against another.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAccountLocks creates an empty lock set.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *AccountLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// lock acquires the locks for the given IDs in sorted order, taking each
// distinct lock once, and returns the matching unlock.
func (l *AccountLocks) lock(ids ...string) func() {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var held []*sync.Mutex
	var prev string
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		m := l.get(id)
		m.Lock()
		held = append(held, m)
		prev = id
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
