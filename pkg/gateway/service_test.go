package gateway_test

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
	"github.com/aretw0/ussdflow/pkg/gateway"
	"github.com/aretw0/ussdflow/pkg/middleware"
	"github.com/aretw0/ussdflow/pkg/session"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []domain.Request
	flows []string
	reply domain.Envelope
}

func (f *fakeProcessor) ProcessRequest(_ context.Context, flowName, _ string, req domain.Request) domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.flows = append(f.flows, flowName)
	return f.reply
}

func TestService_StartRunsPhasesInOrder(t *testing.T) {
	proc := &fakeProcessor{reply: domain.Continue("Welcome")}
	p := middleware.New()

	var order []string
	var mu sync.Mutex
	mark := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	require.NoError(t, p.Use(middleware.BeforeSessionStart, middleware.Typed(func(ctx context.Context, r *domain.Request) (*domain.Request, error) {
		mark("beforeSessionStart")
		r.ShortCode = "*999#"
		return r, nil
	})))
	require.NoError(t, p.Use(middleware.BeforeRequest, middleware.Typed(func(ctx context.Context, r *domain.Request) (*domain.Request, error) {
		mark("beforeRequest")
		r.Input = "sanitized"
		return r, nil
	})))
	require.NoError(t, p.Use(middleware.AfterRequest, middleware.Typed(func(ctx context.Context, x *gateway.Exchange) (*gateway.Exchange, error) {
		mark("afterRequest")
		x.Response.USSDMenu += "!"
		return x, nil
	})))
	require.NoError(t, p.Use(middleware.BeforeResponse, middleware.Typed(func(ctx context.Context, env *domain.Envelope) (*domain.Envelope, error) {
		mark("beforeResponse")
		env.USSDMenu = "[" + env.USSDMenu + "]"
		return env, nil
	})))
	seen := make(chan string, 1)
	require.NoError(t, p.Use(middleware.AfterResponse, middleware.Typed(func(ctx context.Context, x *gateway.Exchange) (*gateway.Exchange, error) {
		seen <- x.Response.USSDMenu
		return x, nil
	})))

	svc := gateway.NewService(proc, session.NewStore(memory.NewStore()), "bank", gateway.WithPipeline(p))
	env := svc.Start(context.Background(), "s1", domain.Request{MSISDN: "254700000001", ShortCode: "*123#"})
	svc.Wait()

	assert.Equal(t, domain.Continue("[Welcome!]"), env)
	assert.Equal(t, []string{"beforeSessionStart", "beforeRequest", "afterRequest", "beforeResponse"}, order)
	require.Len(t, proc.calls, 1)
	assert.Equal(t, "*999#", proc.calls[0].ShortCode)
	assert.Equal(t, "sanitized", proc.calls[0].Input)
	assert.Equal(t, []string{"bank"}, proc.flows)

	select {
	case menu := <-seen:
		assert.Equal(t, "[Welcome!]", menu)
	case <-time.After(time.Second):
		t.Fatal("afterResponse did not run")
	}
}

func TestService_ContinueSkipsSessionStartPhase(t *testing.T) {
	proc := &fakeProcessor{reply: domain.Continue("Next")}
	p := middleware.New()
	called := false
	require.NoError(t, p.Use(middleware.BeforeSessionStart, func(ctx context.Context, payload any) (any, error) {
		called = true
		return payload, nil
	}))

	svc := gateway.NewService(proc, session.NewStore(memory.NewStore()), "bank", gateway.WithPipeline(p))
	env := svc.Continue(context.Background(), "s1", domain.Request{Input: "1"})

	assert.Equal(t, domain.Continue("Next"), env)
	assert.False(t, called)
	assert.Equal(t, "1", proc.calls[0].Input)
}

func TestService_BadMiddlewarePayloadIsIgnored(t *testing.T) {
	proc := &fakeProcessor{reply: domain.Continue("ok")}
	p := middleware.New()
	require.NoError(t, p.Use(middleware.BeforeRequest, func(ctx context.Context, payload any) (any, error) {
		return "not a request", nil
	}))
	require.NoError(t, p.Use(middleware.BeforeResponse, func(ctx context.Context, payload any) (any, error) {
		return 12, nil
	}))

	svc := gateway.NewService(proc, session.NewStore(memory.NewStore()), "bank", gateway.WithPipeline(p))
	env := svc.Continue(context.Background(), "s1", domain.Request{Input: "2"})
	assert.Equal(t, domain.Continue("ok"), env)
	assert.Equal(t, "2", proc.calls[0].Input)
}

func TestService_End(t *testing.T) {
	store := session.NewStore(memory.NewStore())
	_, err := store.Create(context.Background(), "s1", session.Seed{MSISDN: "254700000001", Flow: "bank"})
	require.NoError(t, err)

	p := middleware.New()
	var ends []*gateway.SessionEnd
	require.NoError(t, p.Use(middleware.AfterSessionEnd, middleware.Typed(func(ctx context.Context, e *gateway.SessionEnd) (*gateway.SessionEnd, error) {
		ends = append(ends, e)
		return e, nil
	})))

	svc := gateway.NewService(&fakeProcessor{}, store, "bank", gateway.WithPipeline(p))

	ack := svc.End(context.Background(), "s1")
	assert.Equal(t, domain.Ack{ResponseExitCode: domain.ExitOK}, ack)
	_, err = store.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Idempotent.
	ack = svc.End(context.Background(), "s1")
	assert.Equal(t, domain.ExitOK, ack.ResponseExitCode)

	require.Len(t, ends, 2)
	assert.True(t, ends[0].Existed)
	require.NotNil(t, ends[0].Session)
	assert.Equal(t, "bank", ends[0].Session.Flow)
	assert.False(t, ends[1].Existed)
	assert.Nil(t, ends[1].Session)
}

type failingSessions struct{}

func (failingSessions) Get(context.Context, string) (*domain.Session, error) {
	return nil, domain.ErrStoreUnavailable
}

func (failingSessions) Delete(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestService_EndFailure(t *testing.T) {
	svc := gateway.NewService(&fakeProcessor{}, failingSessions{}, "bank")
	ack := svc.End(context.Background(), "s1")
	assert.Equal(t, domain.ExitFault, ack.ResponseExitCode)
	assert.Contains(t, ack.ResponseMessage, "connection refused")
}
