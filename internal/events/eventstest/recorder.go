// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/capitalize-ai/talent-copilot/internal/model"
)

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

// PublishEvent implements events.Publisher.
func (r *Recorder) PublishEvent(_ context.Context, event *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}
