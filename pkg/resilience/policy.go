package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Outcome labels the result of an envelope execution
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeDomainError Outcome = "domain_error"
	OutcomeFallback    Outcome = "fallback"
	OutcomeError       Outcome = "error"
)

// Observer receives resilience events, typically to export metrics
type Observer interface {
	ObserveCall(policy string, outcome Outcome, duration time.Duration)
	ObserveFallback(policy string, cause string)
	ObserveRetry(policy string, attempt int)
	ObserveStateChange(policy string, from, to State)
	ObserveInFlight(policy string, inFlight int)
}

// NopObserver discards all events
type NopObserver struct{}

func (NopObserver) ObserveCall(string, Outcome, time.Duration) {}
func (NopObserver) ObserveFallback(string, string)             {}
func (NopObserver) ObserveRetry(string, int)                   {}
func (NopObserver) ObserveStateChange(string, State, State)    {}
func (NopObserver) ObserveInFlight(string, int)                {}

// Policy is the resilience state of one call-site: a bulkhead, a circuit
// breaker and a retry schedule
type Policy struct {
	name     string
	mu       sync.RWMutex
	config   Config
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	observer Observer
}

func newPolicy(name string, cfg Config, now func() time.Time, observer Observer) *Policy {
	cfg = cfg.WithDefaults()
	p := &Policy{
		name:     name,
		config:   cfg,
		bulkhead: NewBulkhead(cfg.MaxConcurrent),
		observer: observer,
	}
	p.breaker = NewCircuitBreaker(cfg, now, func(from, to State) {
		observer.ObserveStateChange(name, from, to)
	})
	return p
}

// Name returns the policy name
func (p *Policy) Name() string {
	return p.name
}

// Config returns the active configuration
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Configure replaces the tunables. Breaker state and held permits survive.
func (p *Policy) Configure(cfg Config) {
	cfg = cfg.WithDefaults()
	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()

	p.bulkhead.SetLimit(cfg.MaxConcurrent)
	p.breaker.Reconfigure(cfg)
}

// Breaker exposes the policy's circuit breaker
func (p *Policy) Breaker() *CircuitBreaker {
	return p.breaker
}

// Bulkhead exposes the policy's bulkhead
func (p *Policy) Bulkhead() *Bulkhead {
	return p.bulkhead
}

// newBackOff builds the retry schedule for one execution
func (p *Policy) newBackOff() *backoff.ExponentialBackOff {
	cfg := p.Config()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Multiplier = cfg.BackoffMultiplier
	b.RandomizationFactor = cfg.Jitter
	b.Reset()
	return b
}

// Stats is a point-in-time view of a policy
type Stats struct {
	Name          string  `json:"name"`
	State         string  `json:"state"`
	InFlight      int     `json:"in_flight"`
	MaxConcurrent int     `json:"max_concurrent"`
	FailureRate   float64 `json:"failure_rate"`
	Config        Config  `json:"config"`
}

// Stats returns the current view of the policy
func (p *Policy) Stats() Stats {
	cfg := p.Config()
	return Stats{
		Name:          p.name,
		State:         p.breaker.State().String(),
		InFlight:      p.bulkhead.InFlight(),
		MaxConcurrent: p.bulkhead.Limit(),
		FailureRate:   p.breaker.FailureRate(),
		Config:        cfg,
	}
}

// Registry holds policies by name
type Registry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	defaults Config
	observer Observer
	now      func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithObserver sets the observer notified of resilience events
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock sets the time source used by circuit breakers
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithDefaults sets the configuration used for policies created on demand
func WithDefaults(cfg Config) Option {
	return func(r *Registry) {
		r.defaults = cfg.WithDefaults()
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		policies: make(map[string]*Policy),
		defaults: DefaultConfig(),
		observer: NopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configure creates or reconfigures the named policy
func (r *Registry) Configure(name string, cfg Config) *Policy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.policies[name]; ok {
		p.Configure(cfg)
		return p
	}
	p := newPolicy(name, cfg, r.now, r.observer)
	r.policies[name] = p
	return p
}

// Policy returns the named policy, creating it with the registry defaults
// when it does not exist yet
func (r *Registry) Policy(name string) *Policy {
	r.mu.RLock()
	p, ok := r.policies[name]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[name]; ok {
		return p
	}
	p = newPolicy(name, r.defaults, r.now, r.observer)
	r.policies[name] = p
	return p
}

// Snapshot returns stats for all policies ordered by name
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	policies := make([]*Policy, 0, len(r.policies))
	for _, p := range r.policies {
		policies = append(policies, p)
	}
	r.mu.RUnlock()

	stats := make([]Stats, 0, len(policies))
	for _, p := range policies {
		stats = append(stats, p.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
