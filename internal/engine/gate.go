package engine

import (
	"time"

	"github.com/five82/tally/internal/clock"
)

// collectionGate holds the enabled flag and, after an admin enable, the
// auto-disable window with its advance warning.
type collectionGate struct {
	clock   clock.Clock
	window  time.Duration
	warning time.Duration
	onWarn  func(seq uint64)
	onClose func(seq uint64)

	enabled    bool
	deadline   time.Time
	warnTimer  *clock.Timer
	closeTimer *clock.Timer
	seq        uint64
}

func newCollectionGate(clk clock.Clock, window, warning time.Duration, onWarn, onClose func(seq uint64)) *collectionGate {
	return &collectionGate{
		clock:   clk,
		window:  window,
		warning: warning,
		onWarn:  onWarn,
		onClose: onClose,
	}
}

// Set records the enabled flag and reports whether it changed.
func (g *collectionGate) Set(enabled bool) bool {
	if g.enabled == enabled {
		return false
	}
	g.enabled = enabled
	return true
}

func (g *collectionGate) Enabled() bool { return g.enabled }

// StartWindow (re)starts the auto-disable window and its warning.
func (g *collectionGate) StartWindow() {
	g.StopWindow()
	if g.window <= 0 {
		return
	}
	seq := g.seq
	g.deadline = g.clock.Now().Add(g.window)
	if g.warning > 0 && g.warning < g.window {
		g.warnTimer = g.clock.AfterFunc(g.window-g.warning, func() { g.onWarn(seq) })
	}
	g.closeTimer = g.clock.AfterFunc(g.window, func() { g.onClose(seq) })
}

// StopWindow cancels the auto-disable window.
func (g *collectionGate) StopWindow() {
	g.seq++
	g.warnTimer.Stop()
	g.closeTimer.Stop()
	g.warnTimer = nil
	g.closeTimer = nil
	g.deadline = time.Time{}
}

// Deadline returns when the running window closes collection.
func (g *collectionGate) Deadline() (time.Time, bool) {
	return g.deadline, !g.deadline.IsZero()
}

// Remaining returns the time left in the window at now.
func (g *collectionGate) Remaining(now time.Time) time.Duration {
	if g.deadline.IsZero() {
		return 0
	}
	return max(g.deadline.Sub(now), 0)
}

func (g *collectionGate) current(seq uint64) bool {
	return seq == g.seq && !g.deadline.IsZero()
}
