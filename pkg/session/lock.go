package session

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/ussdflow/pkg/ports"
)

// lockEntry holds the semaphore and the reference count.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process ports.DistributedLocker.
// It uses reference counting to garbage collect unused locks. The ttl argument is
// ignored: a lock is held until released or until the holder's process exits.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

var _ ports.DistributedLocker = (*KeyedLocker)(nil)

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the lock for key is held or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	entry := l.acquire(key)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.sem
			l.release(key)
		})
		return nil
	}, nil
}

// Len returns the number of keys currently locked or waited on.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// acquire gets or creates a lock entry and increments its reference count.
func (l *KeyedLocker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (l *KeyedLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}
