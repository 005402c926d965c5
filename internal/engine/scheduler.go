package engine

import (
	"time"

	"github.com/five82/tally/internal/clock"
)

// Outcome classifies a finished cycle for interval adaptation.
type Outcome int

const (
	// OutcomeUnchanged means the fetch matched the local snapshot.
	OutcomeUnchanged Outcome = iota
	// OutcomeChanged means the fetch differed, or the cycle carried local
	// writes.
	OutcomeChanged
	// OutcomeFailed means the cycle could not read the snapshot.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeChanged:
		return "changed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unchanged"
	}
}

// NextInterval applies the adaptive polling rule. The result is always
// within [def, maxInterval].
func NextInterval(current, def, maxInterval time.Duration, o Outcome) time.Duration {
	switch o {
	case OutcomeChanged:
		return def
	case OutcomeFailed:
		return maxInterval
	}
	return min(max(current*2, def), maxInterval)
}

// scheduler owns the single poll timer. The next tick is armed only by
// Start or Reschedule, so ticks never overlap a cycle.
type scheduler struct {
	clock           clock.Clock
	defaultInterval time.Duration
	maxInterval     time.Duration
	fire            func(seq uint64)

	interval time.Duration
	running  bool
	timer    *clock.Timer
	due      time.Time
	seq      uint64
}

func newScheduler(clk clock.Clock, def, maxInterval time.Duration, fire func(seq uint64)) *scheduler {
	return &scheduler{
		clock:           clk,
		defaultInterval: def,
		maxInterval:     maxInterval,
		fire:            fire,
		interval:        def,
	}
}

// Start begins polling at interval, clamped to the configured bounds.
func (s *scheduler) Start(interval time.Duration) {
	s.running = true
	s.interval = min(max(interval, s.defaultInterval), s.maxInterval)
	s.arm()
}

// Reschedule adapts the interval to o and arms the next tick when polling
// is active. It returns the new interval.
func (s *scheduler) Reschedule(o Outcome) time.Duration {
	s.interval = NextInterval(s.interval, s.defaultInterval, s.maxInterval, o)
	if s.running {
		s.arm()
	}
	return s.interval
}

// Stop cancels the pending tick and halts polling. Calling it again has no
// further effect.
func (s *scheduler) Stop() {
	s.running = false
	s.cancel()
}

// ForceTick cancels the pending tick so the caller can run a cycle now.
// Polling resumes through Reschedule at the end of that cycle.
func (s *scheduler) ForceTick() {
	s.cancel()
}

// Expedite pulls the armed tick forward so it fires within the default
// interval. A tick already due sooner, or none armed, is left alone. The
// backoff interval itself is not reset.
func (s *scheduler) Expedite() {
	if !s.running || s.timer == nil {
		return
	}
	if s.due.Sub(s.clock.Now()) <= s.defaultInterval {
		return
	}
	s.armAfter(s.defaultInterval)
}

func (s *scheduler) Running() bool           { return s.running }
func (s *scheduler) Interval() time.Duration { return s.interval }

// current reports whether a firing carrying seq is still the armed tick.
func (s *scheduler) current(seq uint64) bool {
	return s.running && seq == s.seq
}

func (s *scheduler) cancel() {
	s.seq++
	s.timer.Stop()
	s.timer = nil
}

func (s *scheduler) arm() { s.armAfter(s.interval) }

func (s *scheduler) armAfter(d time.Duration) {
	s.cancel()
	seq := s.seq
	s.due = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, func() { s.fire(seq) })
}
