package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVStoreContract runs a suite of tests to verify that a KVStore implementation
// adheres to the defined interface contract.
func RunKVStoreContract(t *testing.T, store KVStore) {
	ctx := context.Background()
	key := "contract:" + time.Now().Format("20060102150405.000000")

	t.Run("SetEx and Get", func(t *testing.T) {
		err := store.SetEx(ctx, key, []byte(`{"foo":"bar"}`), time.Minute)
		require.NoError(t, err, "SetEx should not return error")

		got, err := store.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, `{"foo":"bar"}`, string(got))
	})

	t.Run("SetEx Overwrites", func(t *testing.T) {
		require.NoError(t, store.SetEx(ctx, key, []byte("v1"), time.Minute))
		require.NoError(t, store.SetEx(ctx, key, []byte("v2"), time.Minute))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-"+key)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.SetEx(ctx, key, []byte("x"), time.Minute))

		existed, err := store.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")
		assert.True(t, existed)

		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrKeyNotFound, "Get after Delete should return ErrKeyNotFound")
	})

	t.Run("Delete Is Idempotent", func(t *testing.T) {
		existed, err := store.Delete(ctx, "missing-"+key)
		require.NoError(t, err)
		assert.False(t, existed)
	})
}
