package feed

import (
	"context"
	"sync"
)

// userLocks hands out one mutex per user id. Entries are reference counted
// and removed once nobody holds or waits on them, so the map only grows with
// the number of concurrently active users.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	// ch has capacity one; holding the lock means having sent into it.
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// acquire blocks until the user's lock is held or ctx is done. The returned
// release func must be called exactly once.
func (l *userLocks) acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{ch: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.ch <- struct{}{}:
		return func() {
			<-ul.ch
			l.unref(userID, ul)
		}, nil
	case <-ctx.Done():
		l.unref(userID, ul)
		return nil, ctx.Err()
	}
}

func (l *userLocks) unref(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

// active returns the number of users with a held or awaited lock.
func (l *userLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
