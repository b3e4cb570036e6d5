package facade

import (
	"sync"

	"github.com/fluxmarket/core/agreement"
)

// keyedMutex serializes operations per AgreementID so two goroutines never
// race to apply conflicting transitions to the same logical agreement,
// while letting unrelated agreements proceed fully in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[agreement.AgreementID]*refCountedMutex
}

type refCountedMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[agreement.AgreementID]*refCountedMutex)}
}

// lock acquires the per-id lock, creating it on first use, and returns an
// unlock function that also releases the bookkeeping entry once nobody
// else is waiting on it.
func (k *keyedMutex) lock(id agreement.AgreementID) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refCountedMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
