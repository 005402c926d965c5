package state

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/five82/tally/internal/classapi"
)

// Snapshot represents the latest session view available to the UI.
type Snapshot struct {
	Code  string
	Admin string
	Mode  classapi.Mode

	Data    classapi.Snapshot
	HasData bool
	// Changes counts syncs that brought in data from other members.
	Changes int

	Variables []string
	Groups    []string
	Enabled   bool

	Idle bool
	Slow bool
	// CollectionRemaining is non-zero once the auto-disable warning fired.
	CollectionRemaining time.Duration

	Loading             bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive sync failures

	// Revision increases on every change so the UI can skip redraws.
	Revision uint64
}

// IsOffline returns true when the store has been unreachable for multiple
// polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Reset clears the view for a newly joined session.
func (s *Store) Reset(code string) {
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{Code: code, Loading: snap.Loading, Revision: snap.Revision}
	})
}

// SetAdmin records the admin token the session holds.
func (s *Store) SetAdmin(token string) {
	s.update(func(snap *Snapshot) { snap.Admin = token })
}

// SetLoading marks the initial join as in progress.
func (s *Store) SetLoading(loading bool) {
	s.update(func(snap *Snapshot) { snap.Loading = loading })
}

// Update installs a successful sync result. Unchanged results are installed
// too, so values this client flushed show up even though the engine does
// not report them as a change.
func (s *Store) Update(changed bool, data classapi.Snapshot) {
	s.update(func(snap *Snapshot) {
		snap.Data = data.Clone()
		snap.HasData = true
		snap.Mode = data.Mode()
		snap.Enabled = data.Enabled
		if changed {
			snap.Changes++
		}
		snap.Idle = false
		snap.LastError = nil
		snap.ConsecutiveFailures = 0
	})
}

// RecordFailure keeps the previous data and records err for visibility.
func (s *Store) RecordFailure(err error) {
	s.update(func(snap *Snapshot) {
		snap.LastError = err
		snap.ConsecutiveFailures++
	})
}

// SetLastUpdated records when the store last answered.
func (s *Store) SetLastUpdated(t time.Time) {
	s.update(func(snap *Snapshot) { snap.LastUpdated = t })
}

// SetEnabled records the collection gate.
func (s *Store) SetEnabled(enabled bool) {
	s.update(func(snap *Snapshot) {
		snap.Enabled = enabled
		if !enabled {
			snap.CollectionRemaining = 0
		}
	})
}

// SetVariables records the variable names.
func (s *Store) SetVariables(names []string) {
	s.update(func(snap *Snapshot) { snap.Variables = slices.Clone(names) })
}

// SetGroups records the group names.
func (s *Store) SetGroups(names []string) {
	s.update(func(snap *Snapshot) { snap.Groups = slices.Clone(names) })
}

// SetIdle records whether polling is suspended for inactivity.
func (s *Store) SetIdle(idle bool) {
	s.update(func(snap *Snapshot) { snap.Idle = idle })
}

// SetSlow records whether the store is answering slowly.
func (s *Store) SetSlow(slow bool) {
	s.update(func(snap *Snapshot) { snap.Slow = slow })
}

// SetCollectionRemaining records the auto-disable warning.
func (s *Store) SetCollectionRemaining(d time.Duration) {
	s.update(func(snap *Snapshot) { snap.CollectionRemaining = d })
}

func (s *Store) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snapshot)
	s.snapshot.Revision++
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Data = s.snapshot.Data.Clone()
	snap.Variables = slices.Clone(s.snapshot.Variables)
	snap.Groups = slices.Clone(s.snapshot.Groups)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}
