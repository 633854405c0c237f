package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// rwLock is a reader/writer lock whose critical sections are closures.
// Release is deferred, so the lock is freed on every exit path. A panic in a
// closure marks the lock poisoned: the panicking call and every later call
// return ErrPoisoned instead of running.
type rwLock struct {
	mu       sync.RWMutex
	poisoned atomic.Bool
}

func (l *rwLock) read(fn func()) (err error) {
	if l.poisoned.Load() {
		return ErrPoisoned
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	defer l.recoverInto(&err)

	if l.poisoned.Load() {
		return ErrPoisoned
	}
	fn()
	return nil
}

func (l *rwLock) write(fn func()) (err error) {
	if l.poisoned.Load() {
		return ErrPoisoned
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.recoverInto(&err)

	// Re-check: a writer ahead of us may have poisoned the lock while we
	// were queued.
	if l.poisoned.Load() {
		return ErrPoisoned
	}
	fn()
	return nil
}

// recoverInto runs before the unlock so the poisoned flag is visible to the
// next holder.
func (l *rwLock) recoverInto(err *error) {
	if r := recover(); r != nil {
		l.poisoned.Store(true)
		*err = fmt.Errorf("%w: %v", ErrPoisoned, r)
	}
}

func (l *rwLock) isPoisoned() bool {
	return l.poisoned.Load()
}
