// Package clock provides the time sources injected into the engine and the
// run recorder.
package clock

import (
	"sync"
	"time"
)

// System implements discovery.Clock using time.Now in UTC.
type System struct{}

// New creates a System clock.
func New() System {
	return System{}
}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Stepped returns a fixed start time and advances by Step on every call.
// Tests use it to get distinct, predictable StartedAt/FinishedAt values.
type Stepped struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepped creates a Stepped clock starting at start.
func NewStepped(start time.Time, step time.Duration) *Stepped {
	return &Stepped{next: start.UTC(), step: step}
}

// Now returns the current tick and advances the clock.
func (s *Stepped) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.next
	s.next = s.next.Add(s.step)
	return now
}
