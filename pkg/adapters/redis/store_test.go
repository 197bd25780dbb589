package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/pkg/adapters/redis"
	"github.com/aretw0/ussdflow/pkg/ports"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunKVStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "session:ttl", []byte(`{}`), time.Second))
	assert.Equal(t, time.Second, mr.TTL("session:ttl"))

	mr.FastForward(2 * time.Second)

	_, err := store.Get(ctx, "session:ttl")
	assert.ErrorIs(t, err, ports.ErrKeyNotFound)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "session:my-session", []byte("x"), time.Minute))

	assert.True(t, mr.Exists("custom:app:session:my-session"), "Expected key with custom prefix to exist")

	got, err := store.Get(ctx, "session:my-session")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	mr.Close()

	assert.Error(t, store.Ping(ctx))
	_, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrKeyNotFound)
	assert.Error(t, store.SetEx(ctx, "k", []byte("v"), time.Minute))
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", redis.Config{Host: "localhost", Port: 6379}.Addr())
}
