package ledger

import (
	"fmt"
	"sync"
	"time"
)

// HandoffWindow is how long a completed handoff counts as recent.
const HandoffWindow = 5 * time.Minute

// Tracker holds the session and handoff timing of one running process.
// It is not persisted.
type Tracker struct {
	mu          sync.Mutex
	now         func() time.Time
	active      bool
	started     time.Time
	lastHandoff time.Time
}

// NewTracker returns an inactive tracker. A nil clock means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Start activates the tracker and forgets any earlier handoff.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
	t.started = t.now()
	t.lastHandoff = time.Time{}
}

// End deactivates the tracker. The start time is kept for reporting.
func (t *Tracker) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Started returns the session start, or false if no session ever started.
func (t *Tracker) Started() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started, !t.started.IsZero()
}

// MarkHandoff records a completed handoff at the current time.
func (t *Tracker) MarkHandoff() {
	t.MarkHandoffAt(t.now())
}

// MarkHandoffAt records a completed handoff at at.
func (t *Tracker) MarkHandoffAt(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastHandoff = at
}

// LastHandoff returns the last handoff time, or false if there was none.
func (t *Tracker) LastHandoff() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastHandoff, !t.lastHandoff.IsZero()
}

// HasRecentHandoff reports whether the last handoff is younger than
// HandoffWindow. It is evaluated against the clock on every call.
func (t *Tracker) HasRecentHandoff() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastHandoff.IsZero() {
		return false
	}
	return t.now().Sub(t.lastHandoff) < HandoffWindow
}

// Duration is the time since Start, or zero before the first Start.
func (t *Tracker) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started.IsZero() {
		return 0
	}
	return t.now().Sub(t.started)
}

// DurationFormatted renders Duration as "1h 5m" or "12m".
func (t *Tracker) DurationFormatted() string {
	return FormatDuration(t.Duration())
}

// FormatDuration truncates d to whole minutes.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	if hours := minutes / 60; hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}
