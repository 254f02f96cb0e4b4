// Package metrics exports service metrics.
//
// Metrics is the Prometheus surface scraped at /metrics. It implements
// resilience.Observer and events.Observer so that every guarded call,
// fallback, retry, breaker transition and change event delivery is
// counted as it happens. OTelMetrics exports the same observations through
// the OpenTelemetry meter provider; use Fanout to feed both.
//
// Collector refreshes gauges that are cheaper to sample than to track, such
// as database pool usage and the record cache, on a cron schedule:
//
//	collector := metrics.NewCollector(m, logger).
//		WithPool("primary", db.Stats).
//		WithCache(cachedStore).
//		WithRegistry(registry)
//	if err := collector.Start("@every 15s"); err != nil {
//		return err
//	}
//	defer collector.Stop()
package metrics
