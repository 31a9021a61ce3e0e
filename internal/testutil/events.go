package testutil

import (
	"context"
	"sync"

	"isp-billing-service/internal/events"
)

// Recorder is an events.Publisher that keeps everything published to it.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Publish(ctx context.Context, kind events.Kind, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events.Event{Kind: kind, Payload: payload})
}

// Of returns the payloads published under kind, in order.
func (r *Recorder) Of(kind events.Kind) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e.Payload)
		}
	}
	return out
}
