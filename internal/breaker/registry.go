// registry.go: Explicit registry of named breakers
package breaker

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry owns every breaker in the process, keyed by dependency name. It is
// constructed at service startup and passed explicitly; there is no
// process-wide mutable map. Breakers are created once at first use and live
// for the process lifetime. Shutdown drains nothing because the registry runs
// no background tasks.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
	configs  map[string]Config
	logger   *zap.Logger
}

// NewRegistry creates a registry with deployment defaults and optional
// per-dependency overrides.
func NewRegistry(defaults Config, overrides map[string]Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		configs:  overrides,
		logger:   logger,
	}
}

// GetOrCreate returns the breaker for name, creating it on first use with the
// per-dependency override when present, else the defaults.
func (r *Registry) GetOrCreate(name string) *Breaker {
	r.mu.RLock()
	if b, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return b
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if b, ok := r.breakers[name]; ok {
		return b
	}

	cfg := r.defaults
	if override, ok := r.configs[name]; ok {
		cfg = r.mergeOverride(override)
	}
	b := New(name, cfg, r.logger)
	r.breakers[name] = b

	r.logger.Info("created circuit breaker",
		zap.String("dependency", name),
		zap.Int("failure_threshold", b.cfg.FailureThreshold),
		zap.Duration("recovery_timeout", b.cfg.RecoveryTimeout))
	return b
}

// mergeOverride keeps the default classifier and transition hook when the
// override carries only numeric tuning (the usual case for file-loaded
// configs).
func (r *Registry) mergeOverride(override Config) Config {
	if override.Classify == nil {
		override.Classify = r.defaults.Classify
	}
	if override.OnStateChange == nil {
		override.OnStateChange = r.defaults.OnStateChange
	}
	return override
}

// Get returns the breaker for name if it exists.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Execute runs op under the named dependency's breaker, creating the breaker
// at first use.
func (r *Registry) Execute(ctx context.Context, name string, op func(context.Context) error) error {
	return r.GetOrCreate(name).Execute(ctx, op)
}

// Names lists registered dependencies in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots captures every breaker's state and counters.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}

// ResetAll forces every breaker back to closed.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
	r.logger.Info("reset all circuit breakers")
}
