// Package progress turns raw worker counters into a human-facing
// completion estimate and an in-place progress display.
package progress

import (
	"time"
)

// Tracker accumulates one worker's own progress. Each worker owns its
// Tracker exclusively; nothing here is shared, so there is no locking.
type Tracker struct {
	start time.Time
	items int
	bytes int64
	last  time.Time
}

// NewTracker returns a tracker whose clock starts now.
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{start: now, last: now}
}

// Done records one completed item of the given size.
func (t *Tracker) Done(bytes int64) {
	t.items++
	t.bytes += bytes
	t.last = time.Now()
}

// Items returns the number of completed items.
func (t *Tracker) Items() int { return t.items }

// Bytes returns the cumulative bytes written.
func (t *Tracker) Bytes() int64 { return t.bytes }

// Elapsed returns the time since the tracker started.
func (t *Tracker) Elapsed() time.Duration { return time.Since(t.start) }

// Throughput returns the average write rate in bytes per second since
// the tracker started, or 0 if no time has passed.
func (t *Tracker) Throughput() float64 {
	secs := time.Since(t.start).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(t.bytes) / secs
}

// ByteDelta estimates completion from a remaining-bytes target and an
// observed throughput. ok is false ("unknown") when progress or the
// target gives no basis for an estimate; the result is never negative.
func ByteDelta(remainingBytes int64, throughputBps float64) (time.Duration, bool) {
	if throughputBps <= 0 {
		return 0, false
	}
	if remainingBytes <= 0 {
		return 0, true
	}
	secs := float64(remainingBytes) / throughputBps
	return time.Duration(secs * float64(time.Second)), true
}

// Fraction estimates completion from claim counts: with completed of
// total items done in elapsed time, the remainder takes
// elapsed*(total-completed)/completed. ok is false until the first
// item completes.
func Fraction(completed, total int, elapsed time.Duration) (time.Duration, bool) {
	if completed <= 0 || total <= 0 || elapsed <= 0 {
		return 0, false
	}
	if completed >= total {
		return 0, true
	}
	per := float64(elapsed) / float64(completed)
	return time.Duration(per * float64(total-completed)), true
}

// FormatETA renders an estimate for display, using "unknown" when no
// estimate exists.
func FormatETA(eta time.Duration, ok bool) string {
	if !ok {
		return "eta unknown"
	}
	return "eta " + eta.Round(time.Second).String()
}
