package conversation

import "sync"

// Locker serializes turns on the same conversation within one process.
// Different conversations proceed in parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[uint]*turnLock
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[uint]*turnLock)}
}

// Lock blocks until the caller holds id and returns the release function.
func (l *Locker) Lock(id uint) func() {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &turnLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// Len reports how many conversations are currently locked or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
