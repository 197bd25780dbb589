// Package helpers manages the named capabilities (validators and dynamic handlers)
// that flow documents refer to.
package helpers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/ports"
)

// Registry manages the available capabilities. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	items map[string]any

	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		items:  make(map[string]any),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a capability under name, replacing any previous one.
// capability must be a ports.Validator, a ports.DynamicHandler, or a function with
// the shape of either.
func (r *Registry) Register(name string, capability any) error {
	if name == "" {
		return fmt.Errorf("helper name is required")
	}

	switch fn := capability.(type) {
	case ports.Validator, ports.DynamicHandler:
	case func(context.Context, string, map[string]any) (bool, error):
		capability = ports.ValidatorFunc(fn)
	case func(context.Context, *domain.Session, domain.HandlerContext) (*domain.ScreenResult, error):
		capability = ports.HandlerFunc(fn)
	default:
		return fmt.Errorf("helper %s: unsupported capability type %T", name, capability)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = capability
	r.logger.Debug("Registered helper", "name", name)
	return nil
}

// Unregister removes a capability and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[name]
	delete(r.items, name)
	return ok
}

// Get looks up a capability by name. It never panics; absence is reported by ok.
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[name]
	return c, ok
}

// Validator returns the named capability if it is a validator.
func (r *Registry) Validator(name string) (ports.Validator, bool) {
	c, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	v, ok := c.(ports.Validator)
	return v, ok
}

// Handler returns the named capability if it is a dynamic handler.
func (r *Registry) Handler(name string) (ports.DynamicHandler, bool) {
	c, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	h, ok := c.(ports.DynamicHandler)
	return h, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
