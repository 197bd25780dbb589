package ports

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by KVStore.Get when the key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// KVStore is the TTL key-value primitive the session store is built on.
type KVStore interface {
	// Get returns the stored value or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetEx stores value under key, replacing any previous value and resetting its TTL.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

// Pinger is implemented by backing stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
