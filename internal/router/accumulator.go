package router

import "time"

// DefaultDelay is the quiet period after which a batch is flushed
const DefaultDelay = 10 * time.Second

// EventAccumulator buffers distinct pending paths until activity has been
// quiet for the delay.
type EventAccumulator struct {
	paths     []string
	pending   map[string]struct{}
	lastEvent time.Time
	now       func() time.Time
}

// NewEventAccumulator creates an empty accumulator
func NewEventAccumulator() *EventAccumulator {
	return &EventAccumulator{
		pending: make(map[string]struct{}),
		now:     time.Now,
	}
}

// Add queues path unless it is already pending, and restarts the quiet
// period either way.
func (a *EventAccumulator) Add(path string) {
	if _, ok := a.pending[path]; !ok {
		a.pending[path] = struct{}{}
		a.paths = append(a.paths, path)
	}
	a.lastEvent = a.now()
}

// Ready reports whether the batch is non-empty and more than delay has
// passed since the last Add.
func (a *EventAccumulator) Ready(delay time.Duration, now time.Time) bool {
	return len(a.paths) > 0 && now.Sub(a.lastEvent) > delay
}

// DrainAll returns the pending paths in first-added order and resets the
// batch.
func (a *EventAccumulator) DrainAll() []string {
	paths := a.paths
	a.paths = nil
	a.pending = make(map[string]struct{})
	a.lastEvent = time.Time{}
	return paths
}

// Contains reports whether path is waiting in the current batch
func (a *EventAccumulator) Contains(path string) bool {
	_, ok := a.pending[path]
	return ok
}

// Len returns the number of pending paths
func (a *EventAccumulator) Len() int {
	return len(a.paths)
}
