package outcome

import (
	"sync"
	"time"
)

var defaultTracker Tracker

// defaultHorizon is how long outcomes are retained when no window has been
// configured.
const defaultHorizon = 30 * time.Minute

// SetWindow sets the retention horizon to the widest window callers will
// ask about. Call once at startup, before recording.
func SetWindow(d time.Duration) {
	defaultTracker.SetWindow(d)
}

// RecordSuccess records a completed delivery pass that drained the buffer.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordFailure records a delivery pass aborted by a transport error.
func RecordFailure() {
	defaultTracker.RecordFailure()
}

// Counts returns (failures, total) within the window. total = successes + failures.
func Counts(window time.Duration) (failures, total int) {
	return defaultTracker.Counts(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of delivery pass outcomes. The mode
// machine only cares about the latest outcome; the tracker exists so the
// health endpoint and the status page can show how the link has behaved
// recently.
type Tracker struct {
	mu           sync.Mutex
	horizon      time.Duration // retention; zero means defaultHorizon
	successTimes []time.Time
	failureTimes []time.Time
}

// SetWindow sets the retention horizon. Outcomes older than the horizon are
// discarded on the next record, so the horizon must cover the widest window
// passed to Counts. Non-positive values are ignored.
func (t *Tracker) SetWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.horizon = d
}

// RecordSuccess records a successful pass at the current time.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordFailure records a failed pass at the current time.
func (t *Tracker) RecordFailure() {
	t.record(&t.failureTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// Counts returns (failures, total) within the window ending at now.
func (t *Tracker) Counts(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	f := countInWindow(t.failureTimes, cutoff)
	s := countInWindow(t.successTimes, cutoff)
	return f, f + s
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.failureTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops outcomes older than the retention horizon. Must be
// called with the mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	horizon := t.horizon
	if horizon <= 0 {
		horizon = defaultHorizon
	}
	cutoff := now.Add(-horizon)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.failureTimes)
}
