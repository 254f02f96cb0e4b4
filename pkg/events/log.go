package events

import (
	"context"

	"github.com/orbsec/organization-service/pkg/observability"
)

// LogPublisher writes events to the log. It is the publisher used when no
// stream is configured.
type LogPublisher struct {
	logger *observability.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *observability.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.WithField("component", "events")}
}

// Deliver logs event at info level
func (p *LogPublisher) Deliver(ctx context.Context, event ChangeEvent) error {
	p.logger.WithFields(map[string]interface{}{
		"event_id":        event.ID,
		"organization_id": event.OrganizationID,
		"change_type":     string(event.ChangeType),
	}).Info(event.Description)
	return nil
}
