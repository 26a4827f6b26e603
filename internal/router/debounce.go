package router

import "time"

// DefaultDebounceWindow is how long a path stays "recently processed"
const DefaultDebounceWindow = 10 * time.Second

// DebounceSet tracks recently seen paths so the burst of notifications a
// single write produces is accepted once. Expired entries are evicted
// lazily, on the next Accept.
type DebounceSet struct {
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// NewDebounceSet creates a set with the given window
func NewDebounceSet(window time.Duration) *DebounceSet {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &DebounceSet{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Accept records path as seen now and reports whether it should be
// processed, which is the case unless it was seen within the window.
func (d *DebounceSet) Accept(path string) bool {
	now := d.now()
	last, ok := d.seen[path]
	recent := ok && now.Sub(last) <= d.window

	d.seen[path] = now
	d.Sweep()

	return !recent
}

// Sweep drops every entry older than the window
func (d *DebounceSet) Sweep() {
	now := d.now()
	for path, last := range d.seen {
		if now.Sub(last) > d.window {
			delete(d.seen, path)
		}
	}
}

// Len returns the number of tracked paths
func (d *DebounceSet) Len() int {
	return len(d.seen)
}
