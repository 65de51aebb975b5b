package utils

import "sync"

// KeyedMutex gives a mutual exclusion scope per key. Entries are reference
// counted and removed when the last holder or waiter is gone, so the map
// doesn't grow with the number of keys ever seen.
type KeyedMutex struct {
	lk    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (m *KeyedMutex) acquire(key string) *keyLock {
	m.lk.Lock()
	defer m.lk.Unlock()

	if m.locks == nil {
		m.locks = make(map[string]*keyLock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = new(keyLock)
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *KeyedMutex) release(key string, l *keyLock) {
	m.lk.Lock()
	defer m.lk.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// Lock blocks until the key's scope is free and returns the unlock function.
func (m *KeyedMutex) Lock(key string) (unlock func()) {
	l := m.acquire(key)
	l.Lock()
	return func() {
		l.Unlock()
		m.release(key, l)
	}
}

// TryLock is like Lock but doesn't wait. It returns false if someone holds
// the key.
func (m *KeyedMutex) TryLock(key string) (unlock func(), ok bool) {
	l := m.acquire(key)
	if !l.TryLock() {
		m.release(key, l)
		return nil, false
	}
	return func() {
		l.Unlock()
		m.release(key, l)
	}, true
}

// Len returns the number of keys currently locked or waited for.
func (m *KeyedMutex) Len() int {
	m.lk.Lock()
	defer m.lk.Unlock()
	return len(m.locks)
}
