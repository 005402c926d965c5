// Package clock provides an injectable time source for the sync engine.
//
// Every timer the engine owns (poll tick, idle deadline, slow-response
// deadline, collection window) is created through a Clock so tests can
// drive them deterministically:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := engine.NewSession(..., engine.WithClock(c))
//	c.Advance(3 * time.Second) // fires the first poll tick synchronously
//
// Production code uses Real(), which delegates to the time package.
package clock
