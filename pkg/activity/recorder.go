package activity

import (
	"context"
	"sync"
)

// Recorder keeps the events it receives in memory. Tests and examples use it
// to assert which layers were reported.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// FailWith makes every later Notify return err after recording the event.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Notify records the event.
func (r *Recorder) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, NormalizeEvent(event))
	return r.err
}

// Events returns the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Verb returns the recorded events with the given verb.
func (r *Recorder) Verb(verb string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, event := range r.events {
		if event.Verb == verb {
			out = append(out, event)
		}
	}
	return out
}

// Offending returns, per diagnostic event about layer, the layers it named.
func (r *Recorder) Offending(layer string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, event := range r.events {
		if event.Diagnostic() && event.Layer == layer {
			out = append(out, cloneStrings(event.OffendingLayers))
		}
	}
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
