package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/ports"
)

const (
	// DefaultTTL is the idle lifetime of a session.
	DefaultTTL = 120 * time.Second
	// DefaultPrefix namespaces session keys in the backing store.
	DefaultPrefix = "session:"
	// DefaultLockTTL bounds how long a session lock survives a crashed holder.
	DefaultLockTTL = 30 * time.Second
)

// Seed holds the values a new session starts with.
type Seed struct {
	MSISDN    string
	ShortCode string
	Flow      string
	// Variables are merged over the reserved ones.
	Variables map[string]any
}

// Update describes a partial change to a session.
type Update struct {
	// Variables are shallow-merged into the session variables.
	Variables map[string]any
	// CurrentScreen, when set, moves the session and appends to its history.
	// Moving clears any pending options.
	CurrentScreen string
	// PendingOptions replaces the pending options when not nil.
	PendingOptions map[string]domain.MenuOption
}

// Store persists sessions in a TTL key-value store.
type Store struct {
	kv     ports.KVStore
	ttl    time.Duration
	prefix string

	locker  ports.DistributedLocker
	lockTTL time.Duration

	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the sliding session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix changes the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLocker enables per-session serialization through WithLock.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Store) {
		s.locker = locker
	}
}

// WithHooks registers lifecycle callbacks fired on Create and Delete.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Store) {
		s.hooks = hooks
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a session store over the given backing engine.
func NewStore(kv ports.KVStore, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		ttl:     DefaultTTL,
		prefix:  DefaultPrefix,
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create initializes (or re-initializes) the session on the welcome screen.
func (s *Store) Create(ctx context.Context, id string, seed Seed) (*domain.Session, error) {
	now := s.now()
	sess := domain.NewSession(id, now)
	sess.Flow = seed.Flow
	sess.Variables[domain.VarMSISDN] = seed.MSISDN
	sess.Variables[domain.VarSessionID] = id
	sess.Variables[domain.VarShortCode] = seed.ShortCode
	for k, v := range seed.Variables {
		sess.Variables[k] = v
	}

	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Debug("Session created", "session_id", id, "flow", seed.Flow)

	if s.hooks.OnSessionStart != nil {
		s.hooks.OnSessionStart(ctx, &domain.SessionEvent{
			EventBase: domain.EventBase{Timestamp: now, Type: domain.EventSessionStart, SessionID: id},
			MSISDN:    seed.MSISDN,
			ShortCode: seed.ShortCode,
			Flow:      seed.Flow,
		})
	}
	return sess, nil
}

// Get loads a session. It returns domain.ErrSessionNotFound when the record is absent or expired.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.kv.Get(ctx, s.prefix+id)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, id, err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrStoreUnavailable, id, err)
	}
	if sess.Variables == nil {
		sess.Variables = make(map[string]any)
	}
	return &sess, nil
}

// Update applies u to the session and refreshes its TTL.
// It is a read-modify-write: concurrent updates of one session are last-write-wins
// unless the caller holds WithLock.
func (s *Store) Update(ctx context.Context, id string, u Update) (*domain.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for k, v := range u.Variables {
		sess.Variables[k] = v
	}
	if u.CurrentScreen != "" {
		sess.CurrentScreen = u.CurrentScreen
		sess.NavHistory = append(sess.NavHistory, u.CurrentScreen)
		sess.PendingOptions = nil
	}
	if u.PendingOptions != nil {
		sess.PendingOptions = u.PendingOptions
	}
	sess.LastInteractionTime = s.now()

	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes the session and reports whether it existed. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	// Best effort read for the end event.
	sess, getErr := s.Get(ctx, id)

	existed, err := s.kv.Delete(ctx, s.prefix+id)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", domain.ErrStoreUnavailable, id, err)
	}
	if !existed {
		return false, nil
	}

	now := s.now()
	event := &domain.SessionEvent{
		EventBase: domain.EventBase{Timestamp: now, Type: domain.EventSessionEnd, SessionID: id},
	}
	if getErr == nil {
		event.Duration = sess.Duration(now)
		event.Flow = sess.Flow
		event.MSISDN, _ = sess.Variables[domain.VarMSISDN].(string)
		event.ShortCode, _ = sess.Variables[domain.VarShortCode].(string)
	}
	s.logger.Debug("Session deleted", "session_id", id, "duration", event.Duration)

	if s.hooks.OnSessionEnd != nil {
		s.hooks.OnSessionEnd(ctx, event)
	}
	return true, nil
}

// WithLock runs fn while holding the session's lock.
// Without a configured locker fn runs immediately.
func (s *Store) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	unlock, err := s.locker.Lock(ctx, s.prefix+id, s.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	defer func() {
		// Use a fresh context so a cancelled request still releases the lock.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release session lock (will expire via TTL)",
				"session_id", id,
				"err", err,
			)
		}
	}()

	return fn(ctx)
}

// Ping checks the backing engine when it supports health checks.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.kv.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) put(ctx context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.kv.SetEx(ctx, s.prefix+sess.ID, data, s.ttl); err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStoreUnavailable, sess.ID, err)
	}
	return nil
}
