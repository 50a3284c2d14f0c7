package recorder

import (
	"sync"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// keyLock hands out one mutex per target id. Entries are reference counted
// and dropped when the last holder unlocks, so the map stays as large as the
// number of targets currently being recorded.
type keyLock struct {
	mu    sync.Mutex
	locks map[domain.TargetID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[domain.TargetID]*refMutex)}
}

func (k *keyLock) Lock(id domain.TargetID) {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()
	m.Lock()
}

func (k *keyLock) Unlock(id domain.TargetID) {
	k.mu.Lock()
	m := k.locks[id]
	m.refs--
	if m.refs == 0 {
		delete(k.locks, id)
	}
	k.mu.Unlock()
	m.Unlock()
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
