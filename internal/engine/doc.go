// Package engine keeps a local replica of a class session consistent with
// the remote store.
//
// # Overview
//
// The store offers request/response only, so the engine polls. Each cycle
// flushes locally queued writes, fetches one snapshot, compares it with the
// last one it saw, and reschedules itself with an interval that adapts to
// what happened:
//
//	changed fetch    -> default interval
//	unchanged fetch  -> interval doubles, capped at the maximum
//	transport error  -> maximum interval
//
// # Components
//
//   - queue.go: per-destination buffer of values not yet written
//   - differ.go: pure comparison of two snapshots
//   - scheduler.go: the single-shot poll timer and interval rule
//   - activity.go: idle suspension and slow-response warning timers
//   - gate.go: enabled flag and the admin auto-disable window
//   - session.go: the Session that composes them and calls the host's Hooks
//
// # Concurrency
//
// A Session owns one mutex guarding every component. Timers come from a
// clock.Clock; their callbacks take the mutex and ignore firings that were
// superseded. Network calls are made with the mutex released and never
// overlap: a tick requested while a cycle is in flight runs as soon as the
// cycle completes. Hooks are invoked after the mutex is released, in the
// order they were produced.
//
// # Errors
//
// A missing session closes the Session and is reported through
// OnDataSyncError. Transport failures go to OnDataSyncFail and are retried
// on the next tick. Failed batch writes are reported and dropped, never
// re-queued. Bad input is rejected with a *ValidationError before any
// network call.
package engine
