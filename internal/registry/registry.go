// Package registry holds the process-wide catalog of registered sources.
// Registration happens once at startup; afterwards the registry is
// read-mostly and shared by reference with the pipeline and the API layer.
package registry

import (
	"fmt"
	"sync"

	"github.com/rowan/parcelbase/internal/adapter"
	"github.com/rowan/parcelbase/internal/domain"
	"golang.org/x/time/rate"
)

// ErrDuplicateSource is returned when a key is registered twice.
var ErrDuplicateSource = fmt.Errorf("source key already registered")

// ErrUnknownSource is returned when a key was never registered.
var ErrUnknownSource = fmt.Errorf("unknown source key")

// RatePolicy is the per-source request rate limit.
type RatePolicy struct {
	RequestsPerSecond float64
	Burst             int
}

// Config is the static configuration of one registered source.
type Config struct {
	Key          string
	DisplayName  string
	StateFips    string
	CountyFips   []string
	SourceType   domain.SourceType
	Platform     domain.SourcePlatform
	BaseURL      string
	Capabilities []string
	RateLimit    RatePolicy
}

// Summary is the read-only view exposed by List.
type Summary struct {
	Key          string                `json:"key"`
	DisplayName  string                `json:"display_name"`
	StateFips    string                `json:"state_fips"`
	CountyFips   []string              `json:"county_fips"`
	SourceType   domain.SourceType     `json:"source_type"`
	Platform     domain.SourcePlatform `json:"platform"`
	BaseURL      string                `json:"base_url"`
	Capabilities []string              `json:"capabilities"`
}

// Factory produces the adapter instance for a source.
type Factory func(cfg Config) adapter.Adapter

type entry struct {
	cfg     Config
	factory Factory

	once    sync.Once
	adapter adapter.Adapter
	limiter *rate.Limiter
}

// Registry maps source keys to their configuration, adapter factory, shared
// adapter instance, and shared rate limiter.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a source under key. Fails with ErrDuplicateSource when the
// key is already present.
func (r *Registry) Register(key string, cfg Config, factory Factory) error {
	if key == "" {
		return fmt.Errorf("source key must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("source %q: factory must not be nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, key)
	}

	cfg.Key = key
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 1
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}

	r.entries[key] = &entry{cfg: cfg, factory: factory}
	r.order = append(r.order, key)
	return nil
}

// Get returns the configuration for key, or ErrUnknownSource.
func (r *Registry) Get(key string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}
	return e.cfg, nil
}

// Adapter returns the shared adapter instance for key, constructing it on
// first use. Concurrent jobs for the same source share one instance.
func (r *Registry) Adapter(key string) (adapter.Adapter, error) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}

	e.once.Do(func() {
		e.adapter = e.factory(e.cfg)
		e.limiter = rate.NewLimiter(rate.Limit(e.cfg.RateLimit.RequestsPerSecond), e.cfg.RateLimit.Burst)
	})
	return e.adapter, nil
}

// Limiter returns the shared per-source rate limiter for key. The limiter is
// created together with the adapter so all callers throttle through the same
// token bucket.
func (r *Registry) Limiter(key string) (*rate.Limiter, error) {
	if _, err := r.Adapter(key); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key].limiter, nil
}

// List returns summaries of all registered sources in insertion order.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.order))
	for _, key := range r.order {
		cfg := r.entries[key].cfg
		out = append(out, Summary{
			Key:          cfg.Key,
			DisplayName:  cfg.DisplayName,
			StateFips:    cfg.StateFips,
			CountyFips:   cfg.CountyFips,
			SourceType:   cfg.SourceType,
			Platform:     cfg.Platform,
			BaseURL:      cfg.BaseURL,
			Capabilities: cfg.Capabilities,
		})
	}
	return out
}
