package services

import (
	"context"
	"sync"
)

// locationLocks hands out one exclusive section per location identifier.
// Acquisition honours context cancellation; idle locks are released so the
// map does not grow with every location ever seen.
type locationLocks struct {
	mu    sync.Mutex
	locks map[string]*locationLock
}

type locationLock struct {
	sem  chan struct{}
	refs int
}

func newLocationLocks() *locationLocks {
	return &locationLocks{locks: make(map[string]*locationLock)}
}

// Lock blocks until the location is free or ctx is done. The returned func
// releases the lock and must be called exactly once.
func (l *locationLocks) Lock(ctx context.Context, locationID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	lock, ok := l.locks[locationID]
	if !ok {
		lock = &locationLock{sem: make(chan struct{}, 1)}
		l.locks[locationID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(locationID, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.release(locationID, lock)
		})
	}, nil
}

func (l *locationLocks) release(locationID string, lock *locationLock) {
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, locationID)
	}
	l.mu.Unlock()
}

func (l *locationLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
