// Package progress emits structured progress events from an engine run to
// best-effort subscribers, never failing the producing engine.
package progress

import (
	"sync"

	"github.com/memory-loop/daemon/internal/logging"
)

// Status is the coarse state of an engine run.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Event is one immutable progress update. Subscribers must not mutate it.
type Event struct {
	Engine      string
	Status      Status
	Current     int
	Total       int
	CurrentItem string
	Errors      []string
}

// Subscriber receives events. Implementations must return promptly:
// Reporter calls each subscriber synchronously on the emitting goroutine,
// so a slow subscriber delays the producing engine.
type Subscriber func(Event)

// Reporter fans one engine run's events out to registered subscribers.
// Delivery is best-effort: a panicking subscriber is isolated via recover
// and never propagates back to the producing engine. There is no buffering;
// a blocked subscriber blocks Emit.
type Reporter struct {
	mu          sync.RWMutex
	subscribers map[int]Subscriber
	nextID      int
}

// NewReporter constructs an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{subscribers: make(map[int]Subscriber)}
}

// Subscribe registers fn and returns a token for Unsubscribe.
func (r *Reporter) Subscribe(fn Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subscribers[id] = fn
	return id
}

// Unsubscribe removes a previously registered subscriber.
func (r *Reporter) Unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, id)
}

// Emit delivers event to every subscriber. A subscriber that panics is
// recovered and logged; it never takes down the producing engine or other
// subscribers.
func (r *Reporter) Emit(event Event) {
	r.mu.RLock()
	fns := make([]Subscriber, 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		r.deliver(fn, event)
	}
}

func (r *Reporter) deliver(fn Subscriber, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ProgressWarn("progress subscriber panicked, dropping event: %v", rec)
		}
	}()
	fn(event)
}

// Begin emits the transition-to-running event spec.md §4.11 requires at
// the start of a run.
func (r *Reporter) Begin(engine string, total int) {
	r.Emit(Event{Engine: engine, Status: StatusRunning, Current: 0, Total: total})
}

// Item emits a per-item progress event.
func (r *Reporter) Item(engine string, current, total int, item string) {
	r.Emit(Event{Engine: engine, Status: StatusRunning, Current: current, Total: total, CurrentItem: item})
}

// Finish emits the terminal success or error event.
func (r *Reporter) Finish(engine string, total int, errs []string) {
	status := StatusSuccess
	if len(errs) > 0 {
		status = StatusError
	}
	r.Emit(Event{Engine: engine, Status: status, Current: total, Total: total, Errors: errs})
}
