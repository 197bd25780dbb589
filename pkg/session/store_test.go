package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/ussdflow/pkg/adapters/memory"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/ports"
	"github.com/aretw0/ussdflow/pkg/session"
)

// recordingKV wraps a KVStore and remembers the TTLs it was asked to set.
type recordingKV struct {
	ports.KVStore
	mu   sync.Mutex
	ttls []time.Duration
	fail error
}

func (r *recordingKV) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.mu.Lock()
	r.ttls = append(r.ttls, ttl)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.KVStore.SetEx(ctx, key, value, ttl)
}

func (r *recordingKV) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return r.KVStore.Get(ctx, key)
}

func newStore(t *testing.T, opts ...session.Option) (*session.Store, *recordingKV) {
	t.Helper()
	kv := &recordingKV{KVStore: memory.NewStore()}
	return session.NewStore(kv, opts...), kv
}

func TestStore_CreateAndGet(t *testing.T) {
	var started []*domain.SessionEvent
	store, kv := newStore(t,
		session.WithTTL(90*time.Second),
		session.WithHooks(domain.LifecycleHooks{
			OnSessionStart: func(_ context.Context, e *domain.SessionEvent) { started = append(started, e) },
		}),
	)
	ctx := context.Background()

	sess, err := store.Create(ctx, "s1", session.Seed{
		MSISDN:    "254700000001",
		ShortCode: "*123#",
		Flow:      "bank",
		Variables: map[string]any{domain.VarNetworkName: "Safaricom"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WelcomeScreen, sess.CurrentScreen)
	assert.Equal(t, []string{domain.WelcomeScreen}, sess.NavHistory)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "bank", got.Flow)
	assert.Equal(t, map[string]any{
		"msisdn":      "254700000001",
		"sessionId":   "s1",
		"shortCode":   "*123#",
		"networkName": "Safaricom",
	}, got.Variables)

	require.Len(t, started, 1)
	assert.Equal(t, domain.EventSessionStart, started[0].Type)
	assert.Equal(t, "254700000001", started[0].MSISDN)
	assert.Equal(t, []time.Duration{90 * time.Second}, kv.ttls)
}

func TestStore_CreateReinitializes(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "s1", session.Seed{MSISDN: "1"})
	require.NoError(t, err)
	_, err = store.Update(ctx, "s1", session.Update{CurrentScreen: "balance", Variables: map[string]any{"x": "y"}})
	require.NoError(t, err)

	_, err = store.Create(ctx, "s1", session.Seed{MSISDN: "1"})
	require.NoError(t, err)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.WelcomeScreen, got.CurrentScreen)
	assert.Equal(t, []string{domain.WelcomeScreen}, got.NavHistory)
	assert.NotContains(t, got.Variables, "x")
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_Update(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store, kv := newStore(t, session.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := store.Create(ctx, "s1", session.Seed{MSISDN: "1"})
	require.NoError(t, err)

	clock = clock.Add(5 * time.Second)
	got, err := store.Update(ctx, "s1", session.Update{
		Variables:     map[string]any{"amount": "100"},
		CurrentScreen: "confirm",
	})
	require.NoError(t, err)
	assert.Equal(t, "confirm", got.CurrentScreen)
	assert.Equal(t, []string{"welcome", "confirm"}, got.NavHistory)
	assert.Equal(t, "100", got.Variables["amount"])
	assert.Equal(t, "1", got.Variables["msisdn"], "merge keeps existing variables")
	assert.Equal(t, clock, got.LastInteractionTime.UTC())

	// variables only: history untouched
	got, err = store.Update(ctx, "s1", session.Update{Variables: map[string]any{"amount": "200"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"welcome", "confirm"}, got.NavHistory)
	assert.Equal(t, "200", got.Variables["amount"])

	// each write re-arms the TTL
	assert.Len(t, kv.ttls, 3)
}

func TestStore_Update_PendingOptions(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "s1", session.Seed{})
	require.NoError(t, err)

	opts := map[string]domain.MenuOption{"1": {Next: domain.StaticTarget("pay")}}
	got, err := store.Update(ctx, "s1", session.Update{CurrentScreen: "accounts", PendingOptions: opts})
	require.NoError(t, err)
	assert.Equal(t, "pay", got.PendingOptions["1"].Next.Raw)

	reloaded, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "pay", reloaded.PendingOptions["1"].Next.Raw)

	got, err = store.Update(ctx, "s1", session.Update{CurrentScreen: "pay"})
	require.NoError(t, err)
	assert.Nil(t, got.PendingOptions, "moving clears pending options")
}

func TestStore_UpdateMissing(t *testing.T) {
	store, _ := newStore(t)
	_, err := store.Update(context.Background(), "ghost", session.Update{CurrentScreen: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_Delete(t *testing.T) {
	var ended []*domain.SessionEvent
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store, _ := newStore(t,
		session.WithClock(func() time.Time { return clock }),
		session.WithHooks(domain.LifecycleHooks{
			OnSessionEnd: func(_ context.Context, e *domain.SessionEvent) { ended = append(ended, e) },
		}),
	)
	ctx := context.Background()

	_, err := store.Create(ctx, "s1", session.Seed{MSISDN: "1", Flow: "bank"})
	require.NoError(t, err)
	clock = clock.Add(30 * time.Second)

	existed, err := store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, existed, "delete is idempotent")

	require.Len(t, ended, 1, "end fires once")
	assert.Equal(t, 30*time.Second, ended[0].Duration)
	assert.Equal(t, "bank", ended[0].Flow)

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_BackingFailure(t *testing.T) {
	store, kv := newStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "s1", session.Seed{})
	require.NoError(t, err)

	kv.fail = errors.New("connection refused")

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = store.Create(ctx, "s2", session.Seed{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestStore_Expiry(t *testing.T) {
	store, _ := newStore(t, session.WithTTL(50*time.Millisecond))
	ctx := context.Background()
	_, err := store.Create(ctx, "s1", session.Seed{})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_WithLock_Serializes(t *testing.T) {
	store, _ := newStore(t, session.WithLocker(session.NewKeyedLocker()))
	ctx := context.Background()
	_, err := store.Create(ctx, "s1", session.Seed{})
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithLock(ctx, "s1", func(ctx context.Context) error {
				sess, err := store.Get(ctx, "s1")
				if err != nil {
					return err
				}
				n, _ := sess.Variables["n"].(float64)
				_, err = store.Update(ctx, "s1", session.Update{Variables: map[string]any{"n": n + 1}})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, float64(workers), sess.Variables["n"], "no lost updates under the lock")
}

func TestStore_WithLock_NoLocker(t *testing.T) {
	store, _ := newStore(t)
	called := false
	err := store.WithLock(context.Background(), "s1", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestStore_Ping(t *testing.T) {
	store, _ := newStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
