package service

import (
	"context"
	"sync"
)

// intentLocks serialises mutating operations per intent. Each lock is a
// one-slot channel so waiting can honour context cancellation.
type intentLocks struct {
	mu    sync.Mutex
	locks map[string]*intentLock
}

type intentLock struct {
	sem  chan struct{}
	refs int
}

func newIntentLocks() *intentLocks {
	return &intentLocks{locks: make(map[string]*intentLock)}
}

func (l *intentLocks) ref(id string) *intentLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &intentLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

func (l *intentLocks) unref(id string, lk *intentLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// acquire blocks until the intent's lock is held or ctx is done.
func (l *intentLocks) acquire(ctx context.Context, id string) (func(), error) {
	lk := l.ref(id)
	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.unref(id, lk)
		}, nil
	case <-ctx.Done():
		l.unref(id, lk)
		return nil, ctx.Err()
	}
}

// tryAcquire takes the lock only if it is free.
func (l *intentLocks) tryAcquire(id string) (func(), bool) {
	lk := l.ref(id)
	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.unref(id, lk)
		}, true
	default:
		l.unref(id, lk)
		return nil, false
	}
}
