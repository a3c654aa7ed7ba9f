package device

import (
	"sync"
	"time"
)

// StopController is the shared halt condition every worker consults
// before starting a new item. It re-derives the answer from the
// filesystem rather than from a flag pushed by another goroutine: once
// occupancy reaches the threshold it latches and stays true for the
// rest of the run.
//
// The query result is cached for one interval so that N workers
// polling between items cost one statfs, not N. Since occupancy only
// grows under this workload, a stale "keep going" answer is off by at
// most one in-flight item per worker, which is the overshoot bound the
// caller already accepts.
type StopController struct {
	path      string
	threshold int
	query     QueryFunc
	ttl       time.Duration
	now       func() time.Time

	mu      sync.Mutex
	tripped bool
	last    Usage
	lastAt  time.Time
}

// NewStopController returns a controller that trips when the
// occupancy of the filesystem at path reaches threshold percent.
// A zero ttl disables caching (every call queries).
func NewStopController(path string, threshold int, query QueryFunc, ttl time.Duration) *StopController {
	if query == nil {
		query = FS
	}
	return &StopController{
		path:      path,
		threshold: threshold,
		query:     query,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Check reports whether workers must stop picking up new items. A
// query error is returned to the caller without latching anything:
// the failing worker exits its own loop, other workers keep polling.
func (s *StopController) Check() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tripped {
		return true, nil
	}

	now := s.now()
	if s.ttl == 0 || s.lastAt.IsZero() || now.Sub(s.lastAt) >= s.ttl {
		u, err := s.query(s.path)
		if err != nil {
			return false, err
		}
		s.last = u
		s.lastAt = now
	}

	if s.last.Percent() >= s.threshold {
		s.tripped = true
	}
	return s.tripped, nil
}

// Usage returns the most recently observed usage snapshot, querying
// immediately if none exists yet.
func (s *StopController) Usage() (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastAt.IsZero() {
		u, err := s.query(s.path)
		if err != nil {
			return Usage{}, err
		}
		s.last = u
		s.lastAt = s.now()
	}
	return s.last, nil
}

// Threshold returns the configured stop threshold in percent.
func (s *StopController) Threshold() int { return s.threshold }
