package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/aretw0/ussdflow/pkg/ports"
)

// Store implements ports.KVStore in memory on top of a TTL cache.
// Reads do not extend an item's lifetime; only writes do.
// Safe for concurrent use.
type Store struct {
	cache *ttlcache.Cache[string, []byte]
	mu    sync.Mutex // serializes Delete's check-and-remove

	started atomic.Bool
	once    sync.Once
	done    chan struct{}
}

var (
	_ ports.KVStore = (*Store)(nil)
	_ ports.Pinger  = (*Store)(nil)
)

// NewStore creates a new in-memory store. Call Start to run the background expiry loop;
// expired items are never returned even without it.
func NewStore() *Store {
	return &Store{
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
		done: make(chan struct{}),
	}
}

// Start launches the expiry loop in the background. Calling it again has no effect.
func (s *Store) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		s.cache.Start()
	}()
}

// Stop ends the expiry loop and waits for it to exit.
// It is a no-op if Start was never called.
func (s *Store) Stop() {
	if !s.started.Load() {
		return
	}
	s.once.Do(func() {
		s.cache.Stop()
		<-s.done
	})
}

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, ports.ErrKeyNotFound
	}
	return clone(item.Value()), nil
}

// SetEx stores a copy of value with the given TTL.
func (s *Store) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, clone(value), ttl)
	return nil
}

// Delete removes key and reports whether a live value was stored under it.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.cache.Get(key) != nil
	s.cache.Delete(key)
	return existed, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Len returns the number of items held, including expired ones not yet evicted.
func (s *Store) Len() int {
	return s.cache.Len()
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
