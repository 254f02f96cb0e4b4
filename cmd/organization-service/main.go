package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/orbsec/organization-service/pkg/api"
	"github.com/orbsec/organization-service/pkg/config"
	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/httputil"
	"github.com/orbsec/organization-service/pkg/licensing"
	"github.com/orbsec/organization-service/pkg/metrics"
	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/orgs"
	"github.com/orbsec/organization-service/pkg/resilience"
	"github.com/orbsec/organization-service/pkg/storage"
	"github.com/orbsec/organization-service/pkg/storage/sqlstore"
)

// version is set at build time
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("organization service stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	// hooks registered early run last
	defer func() {
		if err := shutdown.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("shutdown finished with errors")
		}
	}()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}
	shutdown.Register("otel", providers.Shutdown)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewMetrics(promRegistry)
	observer := metrics.Fanout{promMetrics}
	if cfg.Observability.OTelEnabled {
		otelMetrics, err := metrics.NewOTelMetrics()
		if err != nil {
			return err
		}
		observer = append(observer, otelMetrics)
	}

	// Resilience policies
	registry := resilience.NewRegistry(resilience.WithObserver(observer))
	for name, policy := range resilience.DefaultPolicies() {
		registry.Configure(name, policy)
	}
	var watcher *config.Watcher
	if cfg.PolicyFile != "" {
		watcher = config.NewWatcher(cfg.PolicyFile, func(pf *config.PolicyFile) {
			pf.Apply(registry, logger)
		}, logger)
		if err := watcher.Load(); err != nil {
			return fmt.Errorf("load policy file: %w", err)
		}
	}

	health := observability.NewHealthChecker(version)

	// Record store
	store, sqlStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	shutdown.Register("store", func(context.Context) error { return store.Close() })
	health.Register("store", true, store.HealthCheck)

	collector := metrics.NewCollector(promMetrics, logger).WithRegistry(registry)
	if sqlStore != nil {
		conns := sqlStore.Connections()
		conns.StartHealthCheckRoutine(ctx, 30*time.Second)
		collector.WithPool("primary", conns.Primary().Stats)
		health.Register("database", true, observability.DatabaseCheck(conns.Primary()))
	}

	var records storage.Store = store
	if cfg.Storage.CacheEnabled {
		cached := storage.NewCachedStore(store, cfg.Storage.CacheSize, cfg.Storage.CacheTTL)
		collector.WithCache(cached)
		records = cached
	}

	// Change events
	publisher, redisClient, err := openPublisher(ctx, cfg.Events, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
		health.Register("redis", false, observability.RedisCheck(redisClient))
	}
	dispatcher := events.NewDispatcher(publisher, registry, cfg.Events.Dispatcher(), logger, events.WithObserver(observer))
	shutdown.Register("events", func(context.Context) error {
		return dispatcher.Close(cfg.Events.Timeout)
	})
	collector.WithPending(dispatcher.Pending)

	licenses, err := licensing.NewClient(licensing.Config{
		BaseURL:   cfg.Licensing.BaseURL,
		Timeout:   cfg.Licensing.Timeout,
		UserAgent: "organization-service/" + version,
	}, logger)
	if err != nil {
		return err
	}

	service := orgs.NewService(records, licenses, dispatcher, registry, orgs.WithLogger(logger))

	server := api.NewServer(service, logger, api.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		Metrics:      promMetrics,
		Tracing:      cfg.Observability.OTelEnabled,
	})

	errorLog := log.New(logger.WithField("component", "http").Writer(), "", 0)
	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     errorLog,
	}
	adminServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           adminHandler(health, promRegistry, registry, cfg.Observability.MetricsEnabled),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          errorLog,
	}
	shutdown.Register("admin-server", adminServer.Shutdown)
	shutdown.Register("api-server", apiServer.Shutdown)

	if cfg.Observability.MetricsEnabled {
		if err := collector.Start(cfg.Observability.MetricsSchedule); err != nil {
			return err
		}
		shutdown.Register("metrics-collector", func(context.Context) error {
			collector.Stop()
			return nil
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(apiServer, logger.WithField("addr", apiServer.Addr), "API server listening")
	})
	g.Go(func() error {
		return serve(adminServer, logger.WithField("addr", adminServer.Addr), "health server listening")
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		return shutdown.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serve(server *http.Server, logger *observability.Logger, msg string) error {
	logger.Info(msg)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", server.Addr, err)
	}
	return nil
}

// openStore returns the configured record store. The SQL store is also
// returned on its own so its pools can be sampled and health checked.
func openStore(ctx context.Context, cfg storage.Config, logger *observability.Logger) (storage.Store, *sqlstore.Store, error) {
	if cfg.Type == "memory" {
		logger.Warn("using in-memory record store, data is lost on restart")
		return storage.NewMemoryStore(), nil, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	s, err := sqlstore.Open(openCtx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}
	logger.WithFields(map[string]interface{}{
		"type":     cfg.Type,
		"replicas": len(cfg.ReplicaDSNs),
	}).Info("record store connected")
	return s, s, nil
}

// openPublisher selects the Redis stream publisher when a URL is set and
// logs events otherwise
func openPublisher(ctx context.Context, cfg config.EventsConfig, logger *observability.Logger) (events.Publisher, *redis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Warn("no redis url configured, change events are only logged")
		return events.NewLogPublisher(logger), nil, nil
	}

	client, err := events.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("stream", cfg.Stream).Info("publishing change events to redis")
	return events.NewRedisStreamPublisher(client, cfg.Stream, cfg.StreamMaxLen), client, nil
}

// adminHandler serves probes, metrics and the policy snapshot on the health port
func adminHandler(health *observability.HealthChecker, promRegistry *prometheus.Registry, registry *resilience.Registry, metricsEnabled bool) http.Handler {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, health)
	if metricsEnabled {
		mux.Handle("/metrics", metrics.Handler(promRegistry))
	}
	mux.HandleFunc("/debug/policies", func(w http.ResponseWriter, r *http.Request) {
		_ = httputil.WriteJSON(w, http.StatusOK, registry.Snapshot())
	})
	return mux
}
