package metrics

import (
	"time"

	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/resilience"
)

// Observer is both a resilience and a change event observer
type Observer interface {
	resilience.Observer
	events.Observer
}

// Fanout forwards every observation to each of its observers
type Fanout []Observer

var _ Observer = Fanout(nil)

func (f Fanout) ObserveCall(policy string, outcome resilience.Outcome, duration time.Duration) {
	for _, o := range f {
		o.ObserveCall(policy, outcome, duration)
	}
}

func (f Fanout) ObserveFallback(policy, cause string) {
	for _, o := range f {
		o.ObserveFallback(policy, cause)
	}
}

func (f Fanout) ObserveRetry(policy string, attempt int) {
	for _, o := range f {
		o.ObserveRetry(policy, attempt)
	}
}

func (f Fanout) ObserveStateChange(policy string, from, to resilience.State) {
	for _, o := range f {
		o.ObserveStateChange(policy, from, to)
	}
}

func (f Fanout) ObserveInFlight(policy string, inFlight int) {
	for _, o := range f {
		o.ObserveInFlight(policy, inFlight)
	}
}

func (f Fanout) ObserveEvent(kind events.ChangeKind, outcome string) {
	for _, o := range f {
		o.ObserveEvent(kind, outcome)
	}
}
