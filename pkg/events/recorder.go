package events

import (
	"context"
	"sync"
	"time"
)

// Recorder is a Notifier and Publisher that keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the event synchronously
func (r *Recorder) Publish(ctx context.Context, subject string, kind ChangeKind, description string) {
	r.record(ChangeEvent{
		OrganizationID: subject,
		ChangeType:     kind,
		Description:    description,
		Timestamp:      time.Now().UTC(),
	})
}

// Deliver records event
func (r *Recorder) Deliver(ctx context.Context, event ChangeEvent) error {
	r.record(event)
	return nil
}

func (r *Recorder) record(event ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
