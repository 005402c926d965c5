// Package state holds the session view shared by the sync engine and the
// UI.
//
// The engine reports through hooks on its own goroutines; the UI reads on
// every render tick. Store sits between them:
//
//	engine hooks ──Update/Set*──▶ Store ──Snapshot()──▶ UI render
//
// Every write bumps Snapshot.Revision, and Snapshot returns deep copies so
// the UI can hold a view without racing the next sync.
//
// Sync failures keep the previous data and count ConsecutiveFailures;
// IsOffline reports two or more in a row. A successful sync resets the
// count.
package state
