package engine

import (
	"time"

	"github.com/five82/tally/internal/clock"
)

// activityMonitor tracks idleness and slow responses. Each timer carries a
// sequence number so a firing that raced with a reset is ignored.
type activityMonitor struct {
	clock       clock.Clock
	idleTimeout time.Duration
	slowAfter   time.Duration
	onIdle      func(seq uint64)
	onSlow      func(seq uint64)

	idle      bool
	idleTimer *clock.Timer
	idleSeq   uint64

	slow      bool
	slowTimer *clock.Timer
	slowSeq   uint64
	started   time.Time
}

func newActivityMonitor(clk clock.Clock, idleTimeout, slowAfter time.Duration, onIdle, onSlow func(seq uint64)) *activityMonitor {
	return &activityMonitor{
		clock:       clk,
		idleTimeout: idleTimeout,
		slowAfter:   slowAfter,
		onIdle:      onIdle,
		onSlow:      onSlow,
	}
}

// Touch records a tracked interaction and restarts the idle window. It
// reports whether the monitor was idle-suspended.
func (a *activityMonitor) Touch() (wasIdle bool) {
	wasIdle = a.idle
	a.idle = false
	a.idleSeq++
	a.idleTimer.Stop()
	a.idleTimer = nil
	if a.idleTimeout > 0 {
		seq := a.idleSeq
		a.idleTimer = a.clock.AfterFunc(a.idleTimeout, func() { a.onIdle(seq) })
	}
	return wasIdle
}

// expireIdle marks the monitor idle if seq is the live idle timer.
func (a *activityMonitor) expireIdle(seq uint64) bool {
	if a.idle || seq != a.idleSeq {
		return false
	}
	a.idle = true
	a.idleTimer = nil
	a.disarmSlow()
	return true
}

// RequestStarted marks the start of a network round trip. The warning
// timer is armed only while no warning is raised, so a store that stays
// slow is reported once.
func (a *activityMonitor) RequestStarted() {
	a.disarmSlow()
	a.started = a.clock.Now()
	if a.idle || a.slow || a.slowAfter <= 0 {
		return
	}
	seq := a.slowSeq
	a.slowTimer = a.clock.AfterFunc(a.slowAfter, func() { a.onSlow(seq) })
}

// ResponseArrived disarms the warning timer and measures the round trip.
// A raised warning clears only when the response came back within the
// threshold; a late response whose timer was lost raises it instead.
// changed reports a transition, slow the resulting state.
func (a *activityMonitor) ResponseArrived() (changed, slow bool) {
	a.disarmSlow()
	if a.slowAfter <= 0 {
		return false, a.slow
	}
	late := a.clock.Now().Sub(a.started) >= a.slowAfter
	switch {
	case a.slow && !late:
		a.slow = false
		return true, false
	case !a.slow && late && !a.idle:
		a.slow = true
		return true, true
	}
	return false, a.slow
}

// raiseSlow raises the warning once if seq is the live slow timer.
func (a *activityMonitor) raiseSlow(seq uint64) bool {
	if a.idle || a.slow || seq != a.slowSeq {
		return false
	}
	a.slow = true
	a.slowTimer = nil
	return true
}

func (a *activityMonitor) Idle() bool { return a.idle }
func (a *activityMonitor) Slow() bool { return a.slow }

// Stop cancels both timers.
func (a *activityMonitor) Stop() {
	a.idleSeq++
	a.idleTimer.Stop()
	a.idleTimer = nil
	a.disarmSlow()
}

func (a *activityMonitor) disarmSlow() {
	a.slowSeq++
	a.slowTimer.Stop()
	a.slowTimer = nil
}
