package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/orbsec/organization-service/pkg/async"
	"github.com/orbsec/organization-service/pkg/faults"
	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/resilience"
)

// Delivery outcomes reported to an Observer
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Observer is told how each event delivery ended
type Observer interface {
	ObserveEvent(kind ChangeKind, outcome string)
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds one delivery including retries
	Timeout time.Duration
	Policy  string
}

// DefaultDispatcherConfig returns the default dispatcher settings
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   4,
		QueueSize: 256,
		Timeout:   10 * time.Second,
		Policy:    resilience.PolicyEventPublish,
	}
}

// Dispatcher is a Notifier that delivers events asynchronously through a
// Publisher. Publish returns as soon as the event is queued. An event is
// dropped, and logged, when the queue is full.
type Dispatcher struct {
	publisher Publisher
	registry  *resilience.Registry
	policy    string
	pool      *async.WorkerPool
	observer  Observer
	logger    *observability.Logger
	now       func() time.Time
}

var _ Notifier = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithObserver sets the observer of delivery outcomes
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithClock sets the event timestamp source
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher starts the delivery workers. The pool lives until Close.
func NewDispatcher(publisher Publisher, registry *resilience.Registry, cfg DispatcherConfig, logger *observability.Logger, opts ...DispatcherOption) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	logger = logger.WithField("component", "events")

	d := &Dispatcher{
		publisher: publisher,
		registry:  registry,
		policy:    cfg.Policy,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.pool = async.NewWorkerPool(context.Background(), async.PoolConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		TaskName:  "event delivery",
		Timeout:   cfg.Timeout,
		Logger:    logger,
	})
	return d
}

// Publish queues a change event for delivery. It never blocks and never
// fails; the caller's cancellation does not abort a queued delivery.
func (d *Dispatcher) Publish(ctx context.Context, subject string, kind ChangeKind, description string) {
	event := ChangeEvent{
		ID:             uuid.NewString(),
		OrganizationID: subject,
		ChangeType:     kind,
		Description:    description,
		Timestamp:      d.now().UTC(),
	}
	detached := context.WithoutCancel(ctx)

	err := d.pool.TrySubmit(func(taskCtx context.Context) error {
		deliverCtx, cancel := context.WithCancel(detached)
		defer cancel()
		stop := context.AfterFunc(taskCtx, cancel)
		defer stop()

		return d.deliver(deliverCtx, event)
	})
	if err != nil {
		d.observe(kind, OutcomeDropped)
		d.eventLogger(event).WithError(err).Error("change event dropped")
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event ChangeEvent) error {
	_, err := resilience.Execute(ctx, d.registry, d.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.publisher.Deliver(ctx, event)
	}, nil)

	if err != nil {
		d.observe(event.ChangeType, OutcomeFailed)
		d.eventLogger(event).
			WithError(err).
			WithField("kind", faults.KindOf(err).String()).
			Error("change event delivery failed")
		return err
	}

	d.observe(event.ChangeType, OutcomePublished)
	d.eventLogger(event).Debug("change event delivered")
	return nil
}

func (d *Dispatcher) eventLogger(event ChangeEvent) *observability.Logger {
	return d.logger.WithFields(map[string]interface{}{
		"event_id":        event.ID,
		"organization_id": event.OrganizationID,
		"change_type":     string(event.ChangeType),
	})
}

func (d *Dispatcher) observe(kind ChangeKind, outcome string) {
	if d.observer != nil {
		d.observer.ObserveEvent(kind, outcome)
	}
}

// Pending returns the number of events waiting for a worker
func (d *Dispatcher) Pending() int {
	return d.pool.Pending()
}

// Close stops accepting events and waits up to timeout for queued ones
func (d *Dispatcher) Close(timeout time.Duration) error {
	err := d.pool.Shutdown(timeout)
	if errors.Is(err, async.ErrPoolClosed) {
		return nil
	}
	return err
}
