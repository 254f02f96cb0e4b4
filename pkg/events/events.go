// Package events emits organization change events.
//
// The orchestrator only sees Notifier, whose Publish has no result: delivery
// is best-effort and a failure is observable through logs and metrics alone.
// Dispatcher hands events to a Publisher on a bounded worker pool so the
// caller never waits for the event stream.
package events

import (
	"context"
	"time"
)

// ChangeKind classifies a mutation
type ChangeKind string

const (
	Created ChangeKind = "CREATED"
	Updated ChangeKind = "UPDATED"
	Deleted ChangeKind = "DELETED"
)

// ChangeEvent describes one committed mutation of an organization
type ChangeEvent struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	ChangeType     ChangeKind `json:"changeType"`
	Description    string     `json:"description"`
	Timestamp      time.Time  `json:"timestamp"`
}

// Notifier accepts change events. Publish must not block on delivery and
// never reports failure to the caller.
type Notifier interface {
	Publish(ctx context.Context, subject string, kind ChangeKind, description string)
}

// Publisher delivers a single event to a stream
type Publisher interface {
	Deliver(ctx context.Context, event ChangeEvent) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event ChangeEvent) error

// Deliver calls f
func (f PublisherFunc) Deliver(ctx context.Context, event ChangeEvent) error {
	return f(ctx, event)
}
