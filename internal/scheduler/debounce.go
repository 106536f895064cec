package scheduler

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into one action: each Trigger
// restarts the quiet window, and the action fires only once no further
// trigger arrives within it. One active timer slot; rearming invalidates
// the previous timer even if it already fired and is waiting on the lock.
type Debouncer struct {
	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	window time.Duration
	action func()
}

// NewDebouncer creates a debouncer that runs action after a quiet window.
func NewDebouncer(window time.Duration, action func()) *Debouncer {
	return &Debouncer{window: window, action: action}
}

// Trigger arms (or re-arms) the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	current := d.seq

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.seq != current {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.action()
	})
}

// Cancel discards any pending trigger. A timer that already fired but has
// not yet run its action is invalidated too.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Pending reports whether a trigger is armed and waiting.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
