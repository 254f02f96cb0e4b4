package metrics

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/resilience"
)

// DefaultSampleSchedule is how often pool gauges are refreshed
const DefaultSampleSchedule = "@every 15s"

// CacheSource reports record cache counters
type CacheSource interface {
	CacheStats() (hits, misses uint64)
	Len() int
}

// Collector periodically copies pool statistics into gauges. Counters that
// are observed on the hot path are not touched here.
type Collector struct {
	metrics *Metrics
	logger  *observability.Logger

	mu       sync.Mutex
	pools    map[string]func() sql.DBStats
	cache    CacheSource
	pending  func() int
	registry *resilience.Registry

	cron *cron.Cron
}

// NewCollector creates a collector writing into m
func NewCollector(m *Metrics, logger *observability.Logger) *Collector {
	return &Collector{
		metrics: m,
		logger:  logger,
		pools:   make(map[string]func() sql.DBStats),
	}
}

// WithPool samples a database pool under the given label
func (c *Collector) WithPool(name string, stats func() sql.DBStats) *Collector {
	c.mu.Lock()
	c.pools[name] = stats
	c.mu.Unlock()
	return c
}

// WithCache samples the record cache
func (c *Collector) WithCache(cache CacheSource) *Collector {
	c.mu.Lock()
	c.cache = cache
	c.mu.Unlock()
	return c
}

// WithPending samples the change event backlog
func (c *Collector) WithPending(pending func() int) *Collector {
	c.mu.Lock()
	c.pending = pending
	c.mu.Unlock()
	return c
}

// WithRegistry samples breaker state and bulkhead usage of every policy
func (c *Collector) WithRegistry(registry *resilience.Registry) *Collector {
	c.mu.Lock()
	c.registry = registry
	c.mu.Unlock()
	return c
}

// Sample refreshes all gauges once
func (c *Collector) Sample() {
	defer observability.RecoverPanic(c.logger, "metrics.Collector.Sample")

	c.mu.Lock()
	defer c.mu.Unlock()

	for name, stats := range c.pools {
		s := stats()
		c.metrics.DBConnectionsOpen.WithLabelValues(name).Set(float64(s.OpenConnections))
		c.metrics.DBConnectionsInUse.WithLabelValues(name).Set(float64(s.InUse))
		c.metrics.DBConnectionsIdle.WithLabelValues(name).Set(float64(s.Idle))
		c.metrics.DBWaitCount.WithLabelValues(name).Set(float64(s.WaitCount))
	}

	if c.cache != nil {
		hits, misses := c.cache.CacheStats()
		c.metrics.CacheHits.Set(float64(hits))
		c.metrics.CacheMisses.Set(float64(misses))
		c.metrics.CacheEntries.Set(float64(c.cache.Len()))
	}

	if c.pending != nil {
		c.metrics.EventsPending.Set(float64(c.pending()))
	}

	if c.registry != nil {
		for _, p := range c.registry.Snapshot() {
			c.metrics.InFlight.WithLabelValues(p.Name).Set(float64(p.InFlight))
			c.metrics.BreakerState.WithLabelValues(p.Name).Set(float64(stateValue(p.State)))
		}
	}
}

func stateValue(state string) resilience.State {
	switch state {
	case resilience.StateOpen.String():
		return resilience.StateOpen
	case resilience.StateHalfOpen.String():
		return resilience.StateHalfOpen
	default:
		return resilience.StateClosed
	}
}

// Start samples once and then on schedule until Stop
func (c *Collector) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSampleSchedule
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, c.Sample); err != nil {
		return fmt.Errorf("invalid sample schedule %q: %w", schedule, err)
	}

	c.Sample()
	scheduler.Start()
	c.cron = scheduler
	c.logger.WithField("schedule", schedule).Info("metrics collector started")
	return nil
}

// Stop halts the schedule and waits for a running sample to finish
func (c *Collector) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
}
