package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
)

// Extensions recognized as flow documents.
var Extensions = []string{".json", ".yaml", ".yml"}

// Capabilities is the lookup the registry uses to warn about unknown helpers.
type Capabilities interface {
	Get(name string) (any, bool)
}

// Registry holds the loaded flows. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]*domain.Flow

	helpers Capabilities
	logger  *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for the Registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithCapabilities enables the unknown-helper warning on load.
func WithCapabilities(c Capabilities) Option {
	return func(r *Registry) {
		r.helpers = c
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		flows:  make(map[string]*domain.Flow),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadAll parses and validates every flow document in dir and replaces the registered
// set in one step. If any document fails, nothing is replaced.
func (r *Registry) LoadAll(ctx context.Context, dir string) ([]Warning, error) {
	r.logger.Info("Loading flows", "path", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read flows directory: %w", err)
	}

	next := make(map[string]*domain.Flow)
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isDocument(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		name, raw, err := ReadDocument(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := next[name]; dup {
			errs = append(errs, &ValidationError{Flow: name, Reason: "defined by more than one document"})
			continue
		}

		f, err := Decode(name, raw)
		if err != nil {
			if verrs := ValidationErrors(err); verrs != nil {
				errs = append(errs, verrs...)
			} else {
				errs = append(errs, err)
			}
			continue
		}
		next[name] = f
	}

	if len(errs) > 0 {
		r.logger.Error("Flow load failed, keeping previous flows", "errors", len(errs))
		return nil, aggregate(errs)
	}

	warnings := r.lint(next)

	r.mu.Lock()
	r.flows = next
	r.mu.Unlock()

	r.logger.Info("Loaded flows", "count", len(next), "names", strings.Join(sortedKeys(next), ","))
	return warnings, nil
}

// Put registers a single flow, replacing any flow with the same name.
func (r *Registry) Put(f *domain.Flow) []Warning {
	warnings := r.lint(map[string]*domain.Flow{f.Name: f})

	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]*domain.Flow, len(r.flows)+1)
	for k, v := range r.flows {
		next[k] = v
	}
	next[f.Name] = f
	r.flows = next
	return warnings
}

// Get returns the named flow or domain.ErrFlowNotFound.
func (r *Registry) Get(name string) (*domain.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, name)
	}
	return f, nil
}

// Names returns the registered flow names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.flows)
}

// Len returns the number of registered flows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

func (r *Registry) lint(flows map[string]*domain.Flow) []Warning {
	var known func(string) bool
	if r.helpers != nil {
		known = func(name string) bool {
			_, ok := r.helpers.Get(name)
			return ok
		}
	}

	var out []Warning
	for _, name := range sortedKeys(flows) {
		for _, w := range Lint(flows[name], known) {
			r.logger.Warn("Flow warning", "flow", w.Flow, "screen", w.Screen, "warning", w.Message)
			out = append(out, w)
		}
	}
	return out
}

// ReadDocument reads a flow file and returns its flow name and raw content.
func ReadDocument(path string) (string, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read flow %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	raw := make(map[string]any)
	switch ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = fmt.Errorf("unsupported extension %q", ext)
	}
	if err != nil {
		return "", nil, &ValidationError{Flow: name, Reason: fmt.Sprintf("parse %s: %v", filepath.Base(path), err)}
	}
	return name, raw, nil
}

func isDocument(file string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(file)))
}
