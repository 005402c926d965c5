package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/clock"
)

// Session is one joined class session. It is created by Join or Create and
// released by Close; a new session code always gets a new Session.
type Session struct {
	code   string
	admin  string
	mode   classapi.Mode
	remote classapi.Remote
	hooks  Hooks
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	info     classapi.SessionInfo
	local    classapi.Snapshot
	fetched  bool
	queue    *writeQueue
	sched    *scheduler
	activity *activityMonitor
	gate     *collectionGate

	ignoreNextRefresh bool
	bypassNext        bool
	inFlight          bool
	tickQueued        bool
	lastUpdated       time.Time
	lastErr           error

	events      []func()
	dispatching bool
}

// Status is a point-in-time view of a Session for display.
type Status struct {
	Code               string
	Admin              bool
	Mode               classapi.Mode
	Enabled            bool
	Polling            bool
	Idle               bool
	Slow               bool
	Interval           time.Duration
	Pending            int
	LastUpdated        time.Time
	LastError          error
	CollectionDeadline time.Time
	Expires            time.Time
	Closed             bool
}

// Join validates code (and admin, when non-empty) with the store, runs the
// first sync cycle, and starts polling. ctx bounds the lookup only; the
// Session runs until Close.
func Join(ctx context.Context, code, admin string, opts Options) (*Session, error) {
	code = classapi.NormalizeCode(code)
	admin = strings.TrimSpace(admin)
	if code == "" {
		return nil, invalid("join", "session code is empty")
	}
	if opts.Remote == nil {
		return nil, errors.New("join: remote is nil")
	}
	opts = opts.withDefaults()

	opts.Hooks.OnInitBegin()
	defer opts.Hooks.OnInitEnd()

	info, err := opts.Remote.LookupSession(ctx, code, admin)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", code, err)
	}
	if admin != "" && !info.AdminValid {
		return nil, fmt.Errorf("join %s: %w", code, ErrAdminRejected)
	}

	s := newSession(ctx, code, admin, info, opts)
	s.start()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("join %s: %w", code, classapi.ErrSessionNotFound)
	}
	return s, nil
}

// Create asks the store for a new session and joins it as admin.
func Create(ctx context.Context, spec classapi.NewSession, opts Options) (*Session, error) {
	const op = "create session"
	if n := len(spec.Variables); n < 1 || n > 2 {
		return nil, invalid(op, "want 1 or 2 variables, got %d", n)
	}
	for _, name := range slices.Concat(spec.Variables, spec.Groups) {
		if strings.TrimSpace(name) == "" {
			return nil, invalid(op, "names must not be empty")
		}
	}
	if len(spec.Variables) == 2 && len(spec.Groups) > 0 {
		return nil, invalid(op, "paired sessions cannot have groups")
	}
	if opts.Remote == nil {
		return nil, errors.New("create session: remote is nil")
	}
	creds, err := opts.Remote.CreateSession(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return Join(ctx, creds.Code, creds.Admin, opts)
}

func newSession(ctx context.Context, code, admin string, info classapi.SessionInfo, opts Options) *Session {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		code:   code,
		admin:  admin,
		mode:   info.Mode(),
		remote: opts.Remote,
		hooks:  opts.Hooks,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "engine", "session", code),
		cfg:    opts.Config,
		ctx:    sctx,
		cancel: cancel,
		info:   info,
		queue:  newWriteQueue(),
	}
	cfg := s.cfg
	s.sched = newScheduler(s.clock, cfg.DefaultInterval, cfg.MaxInterval, s.onPollTimer)
	s.activity = newActivityMonitor(s.clock, cfg.IdleTimeout, cfg.SlowResponse, s.onIdleTimer, s.onSlowTimer)
	s.gate = newCollectionGate(s.clock, cfg.CollectionWindow, cfg.CollectionWarning, s.onCollectionWarning, s.onCollectionExpired)
	return s
}

func (s *Session) start() {
	s.mu.Lock()
	s.logger.Info("session joined", "mode", s.mode, "admin", s.admin != "")
	s.emit(func() { s.hooks.OnClassCodeSet(s.code) })
	if s.admin != "" {
		admin := s.admin
		s.emit(func() { s.hooks.OnAdminCodeSet(admin) })
	}
	s.gate.Set(s.info.Enabled)
	s.emitEnabled(s.info.Enabled)
	s.activity.Touch()
	s.sched.Start(s.cfg.DefaultInterval)
	s.tickLocked()
	s.unlockAndDispatch()
}

// Code returns the normalized session code.
func (s *Session) Code() string { return s.code }

// IsAdmin reports whether the session holds an accepted admin token.
func (s *Session) IsAdmin() bool { return s.admin != "" }

// Mode returns the data layout of the session.
func (s *Session) Mode() classapi.Mode { return s.mode }

// Close stops every timer, drops queued writes, and discards the result of
// any cycle still in flight. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.shutdownLocked()
	s.logger.Info("session closed")
	s.unlockAndDispatch()
}

func (s *Session) shutdownLocked() {
	s.closed = true
	s.cancel()
	s.sched.Stop()
	s.activity.Stop()
	s.gate.StopWindow()
	s.queue.Clear()
}

// Snapshot returns a copy of the last fetched snapshot. ok is false until
// the first successful fetch.
func (s *Session) Snapshot() (snap classapi.Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local.Clone(), s.fetched
}

// Pending returns how many values are queued and not yet flushed.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Status reports the current engine state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, _ := s.gate.Deadline()
	return Status{
		Code:               s.code,
		Admin:              s.admin != "",
		Mode:               s.mode,
		Enabled:            s.gate.Enabled(),
		Polling:            s.sched.Running(),
		Idle:               s.activity.Idle(),
		Slow:               s.activity.Slow(),
		Interval:           s.sched.Interval(),
		Pending:            s.queue.Len(),
		LastUpdated:        s.lastUpdated,
		LastError:          s.lastErr,
		CollectionDeadline: deadline,
		Expires:            s.info.Expires,
		Closed:             s.closed,
	}
}

// Enqueue queues values for a 1-based group. They go out with the next
// scheduled cycle, which is brought forward to at most the default
// interval; if polling was idle-suspended a cycle runs immediately. A
// non-admin session cannot write while collection is closed.
func (s *Session) Enqueue(group int, values ...float64) error {
	const op = "enqueue"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := s.checkGroupLocked(op, group); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := checkValues(op, values); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.checkGateLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	s.queue.Enqueue(group, values...)
	s.scheduleFlushLocked()
	s.unlockAndDispatch()
	return nil
}

// EnqueuePairs queues paired observations on the same terms as Enqueue.
func (s *Session) EnqueuePairs(points ...classapi.Point) error {
	const op = "enqueue pairs"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.mode != classapi.ModePaired {
		s.mu.Unlock()
		return invalid(op, "session collects grouped values")
	}
	for _, p := range points {
		if err := checkValues(op, []float64{p.X, p.Y}); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if len(points) == 0 {
		s.mu.Unlock()
		return invalid(op, "no points")
	}
	if err := s.checkGateLocked(op); err != nil {
		s.mu.Unlock()
		return err
	}
	s.queue.EnqueuePairs(points...)
	s.scheduleFlushLocked()
	s.unlockAndDispatch()
	return nil
}

// Refresh runs a cycle now. It counts as user activity, so it also lifts
// idle suspension.
func (s *Session) Refresh() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.interactLocked()
	s.tickLocked()
	s.unlockAndDispatch()
}

// Resume lifts idle suspension: the idle window restarts and a cycle runs
// immediately.
func (s *Session) Resume() {
	s.Refresh()
}

// ForceTick runs a cycle now without counting as user activity. A cycle
// already in flight is followed by exactly one more.
func (s *Session) ForceTick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tickLocked()
	s.unlockAndDispatch()
}

// SetEnabled opens or closes collection for non-admin writers. An admin
// initiated enable starts (or restarts) the auto-disable window.
func (s *Session) SetEnabled(ctx context.Context, enabled, adminInitiated bool) error {
	return s.setEnabled(ctx, enabled, adminInitiated, true)
}

// Renew restarts the collection window.
func (s *Session) Renew(ctx context.Context) error {
	return s.SetEnabled(ctx, true, true)
}

func (s *Session) setEnabled(ctx context.Context, enabled, adminInitiated, tracked bool) error {
	const op = "set enabled"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.admin == "" {
		s.mu.Unlock()
		return invalid(op, "admin token required")
	}
	if tracked {
		s.interactLocked()
	}
	s.mu.Unlock()

	err := s.remote.SetEnabled(ctx, s.code, s.admin, enabled)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		s.failMutationLocked(op, err)
		s.unlockAndDispatch()
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.gate.Set(enabled) {
		s.emitEnabled(enabled)
	}
	switch {
	case enabled && adminInitiated:
		s.gate.StartWindow()
	case !enabled:
		s.gate.StopWindow()
	}
	s.logger.Info("collection toggled", "enabled", enabled, "admin_initiated", adminInitiated)
	s.bypassNext = true
	s.tickLocked()
	s.unlockAndDispatch()
	return nil
}

// Extend pushes the session's expiration out and returns the new deadline.
func (s *Session) Extend(ctx context.Context) (time.Time, error) {
	const op = "extend"
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return time.Time{}, ErrClosed
	}
	if s.admin == "" {
		s.mu.Unlock()
		return time.Time{}, invalid(op, "admin token required")
	}
	s.interactLocked()
	s.mu.Unlock()

	expires, err := s.remote.ExtendExpiration(ctx, s.code, s.admin)

	s.mu.Lock()
	if err != nil {
		if !s.closed {
			s.failMutationLocked(op, err)
		}
		s.unlockAndDispatch()
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	s.info.Expires = expires
	s.logger.Info("session extended", "expires", expires)
	s.unlockAndDispatch()
	return expires, nil
}

// DeletePoint removes one occurrence of value from a group.
func (s *Session) DeletePoint(ctx context.Context, group int, value float64) error {
	const op = "delete point"
	return s.mutate(ctx, op, false, func() error {
		if err := s.checkGroupLocked(op, group); err != nil {
			return err
		}
		return checkValues(op, []float64{value})
	}, func(ctx context.Context, code, _ string) error {
		return s.remote.DeleteGroupPoint(ctx, code, group, value)
	})
}

// DeletePair removes one occurrence of a paired observation.
func (s *Session) DeletePair(ctx context.Context, p classapi.Point) error {
	const op = "delete point"
	return s.mutate(ctx, op, false, func() error {
		if s.mode != classapi.ModePaired {
			return invalid(op, "session collects grouped values")
		}
		return checkValues(op, []float64{p.X, p.Y})
	}, func(ctx context.Context, code, _ string) error {
		return s.remote.DeletePair(ctx, code, p)
	})
}

// DeleteGroupData removes every observation in a group.
func (s *Session) DeleteGroupData(ctx context.Context, group int) error {
	const op = "delete group data"
	return s.mutate(ctx, op, true, func() error {
		return s.checkGroupLocked(op, group)
	}, func(ctx context.Context, code, admin string) error {
		return s.remote.DeleteGroupData(ctx, code, admin, group)
	})
}

// DeleteAll removes every observation in the session.
func (s *Session) DeleteAll(ctx context.Context) error {
	return s.mutate(ctx, "delete all", true, nil, func(ctx context.Context, code, admin string) error {
		return s.remote.DeleteAll(ctx, code, admin)
	})
}

// RenameVariable renames a 1-based variable slot.
func (s *Session) RenameVariable(ctx context.Context, index int, name string) error {
	const op = "rename variable"
	name = strings.TrimSpace(name)
	return s.mutate(ctx, op, true, func() error {
		vars, _ := s.layoutLocked()
		if index < 1 || index > len(vars) {
			return invalid(op, "variable %d out of range 1..%d", index, len(vars))
		}
		return checkName(op, name)
	}, func(ctx context.Context, code, admin string) error {
		return s.remote.RenameVariable(ctx, code, admin, index, name)
	})
}

// RenameGroup renames a 1-based named group.
func (s *Session) RenameGroup(ctx context.Context, index int, name string) error {
	const op = "rename group"
	name = strings.TrimSpace(name)
	return s.mutate(ctx, op, true, func() error {
		if err := s.checkNamedGroupLocked(op, index); err != nil {
			return err
		}
		return checkName(op, name)
	}, func(ctx context.Context, code, admin string) error {
		return s.remote.RenameGroup(ctx, code, admin, index, name)
	})
}

// AddGroup appends a named group.
func (s *Session) AddGroup(ctx context.Context, name string) error {
	const op = "add group"
	name = strings.TrimSpace(name)
	return s.mutate(ctx, op, true, func() error {
		if s.mode != classapi.ModeGrouped {
			return invalid(op, "paired sessions cannot have groups")
		}
		return checkName(op, name)
	}, func(ctx context.Context, code, admin string) error {
		return s.remote.AddGroup(ctx, code, admin, name)
	})
}

// DeleteGroup removes a named group and its observations.
func (s *Session) DeleteGroup(ctx context.Context, index int) error {
	const op = "delete group"
	return s.mutate(ctx, op, true, func() error {
		return s.checkNamedGroupLocked(op, index)
	}, func(ctx context.Context, code, admin string) error {
		return s.remote.DeleteGroup(ctx, code, admin, index)
	})
}

// mutate runs a store call as a tracked interaction: validate under the
// lock, call without it, then tick so the change is observed.
func (s *Session) mutate(ctx context.Context, op string, privileged bool, validate func() error, call func(ctx context.Context, code, admin string) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if privileged && s.admin == "" {
		s.mu.Unlock()
		return invalid(op, "admin token required")
	}
	if validate != nil {
		if err := validate(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.interactLocked()
	s.mu.Unlock()

	err := call(ctx, s.code, s.admin)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return ErrClosed
	}
	if err != nil {
		s.failMutationLocked(op, err)
		s.unlockAndDispatch()
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("mutation applied", "op", op)
	s.bypassNext = true
	s.tickLocked()
	s.unlockAndDispatch()
	return nil
}

func (s *Session) failMutationLocked(op string, err error) {
	if errors.Is(err, classapi.ErrSessionNotFound) {
		s.logger.Warn("session no longer exists", "op", op)
		s.emit(func() { s.hooks.OnDataSyncError(err) })
		s.shutdownLocked()
		return
	}
	s.logger.Warn("mutation failed", "op", op, "error", err)
}

// interactLocked records user activity, restarting polling if it was
// suspended. It reports whether polling was resumed.
func (s *Session) interactLocked() (resumed bool) {
	if !s.activity.Touch() {
		return false
	}
	s.logger.Info("polling resumed")
	s.sched.Start(s.cfg.DefaultInterval)
	return true
}

// scheduleFlushLocked records a write as activity and makes sure queued
// values leave soon: immediately when it lifted idle suspension, otherwise
// on the next tick, pulled in to the default interval.
func (s *Session) scheduleFlushLocked() {
	if s.interactLocked() {
		s.tickLocked()
		return
	}
	s.sched.Expedite()
}

// tickLocked runs cycles until no further tick was requested. If a cycle
// is already in flight the request is folded into it.
func (s *Session) tickLocked() {
	if s.inFlight {
		s.tickQueued = true
		return
	}
	for {
		s.cycleLocked()
		if s.closed || !s.tickQueued {
			return
		}
		s.tickQueued = false
	}
}

// cycleLocked performs flush, fetch, diff, and reschedule. The lock is
// released for the network round trip.
func (s *Session) cycleLocked() {
	s.inFlight = true
	s.sched.ForceTick()
	batch := s.queue.Take()
	if !batch.Empty() {
		s.ignoreNextRefresh = true
	}
	opts := classapi.FetchOptions{
		BypassCache: s.admin != "" && (s.ignoreNextRefresh || s.bypassNext),
	}
	s.bypassNext = false
	s.activity.RequestStarted()
	ctx := s.ctx
	s.mu.Unlock()

	var writeErr error
	if !batch.Empty() {
		writeErr = s.flush(ctx, batch)
	}
	snap, err := s.remote.FetchSnapshot(ctx, s.code, opts)

	s.mu.Lock()
	s.inFlight = false
	if s.closed {
		return
	}
	if changed, slow := s.activity.ResponseArrived(); changed {
		if slow {
			s.logger.Warn("store is responding slowly", "threshold", s.cfg.SlowResponse)
		}
		s.emitSlow(slow)
	}
	if writeErr != nil {
		s.logger.Warn("batch write dropped", "values", batch.Len(), "error", writeErr)
		if classapi.IsTransport(writeErr) {
			s.emit(func() { s.hooks.OnDataSyncFail(writeErr) })
		} else {
			s.emit(func() { s.hooks.OnDataSyncError(writeErr) })
		}
	}
	outcome := s.applyFetchLocked(snap, err)
	if s.closed {
		return
	}
	interval := s.sched.Reschedule(outcome)
	if s.queue.Len() > 0 {
		// Values queued while this cycle was in flight.
		s.sched.Expedite()
	}
	s.logger.Debug("sync cycle",
		"outcome", outcome.String(),
		"interval", interval,
		"flushed", batch.Len(),
		"bypass_cache", opts.BypassCache,
	)
}

// flush writes a batch. Groups are written concurrently; paired values go
// in one call so rows stay aligned.
func (s *Session) flush(ctx context.Context, b Batch) error {
	if len(b.X) > 0 {
		if err := s.remote.WritePairs(ctx, s.code, b.X, b.Y); err != nil {
			return fmt.Errorf("write %d pairs: %w", len(b.X), err)
		}
		return nil
	}
	errs := make([]error, len(b.Groups))
	var wg conc.WaitGroup
	for i, g := range b.Groups {
		wg.Go(func() {
			if err := s.remote.WriteGroup(ctx, s.code, g.Group, g.Values); err != nil {
				errs[i] = fmt.Errorf("write %d values to group %d: %w", len(g.Values), g.Group, err)
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *Session) applyFetchLocked(snap classapi.Snapshot, err error) Outcome {
	if err != nil {
		s.lastErr = err
		switch {
		case errors.Is(err, classapi.ErrSessionNotFound):
			s.logger.Warn("session no longer exists")
			s.emit(func() { s.hooks.OnDataSyncError(err) })
			s.shutdownLocked()
		case classapi.IsTransport(err):
			s.logger.Warn("snapshot fetch failed", "error", err)
			s.emit(func() { s.hooks.OnDataSyncFail(err) })
		default:
			s.logger.Warn("store rejected snapshot fetch", "error", err)
			s.emit(func() { s.hooks.OnDataSyncError(err) })
		}
		return OutcomeFailed
	}

	now := s.clock.Now()
	s.lastErr = nil
	s.lastUpdated = now

	res := Diff(s.local, snap)
	outcome := OutcomeUnchanged
	changed := false
	switch {
	case s.ignoreNextRefresh:
		s.ignoreNextRefresh = false
		s.local = res.Snapshot
		outcome = OutcomeChanged
	case res.Changed || !s.fetched:
		s.local = res.Snapshot
		outcome = OutcomeChanged
		changed = true
		if !s.activity.Idle() {
			s.activity.Touch()
		}
	}
	s.fetched = true

	if res.VariablesRenamed {
		names := append([]string(nil), snap.Variables...)
		s.emit(func() { s.hooks.OnVariableNameChanged(names) })
	}
	if res.GroupsRenamed {
		names := append([]string(nil), snap.Groups...)
		s.emit(func() { s.hooks.OnGroupNameChanged(names) })
	}
	if s.gate.Set(snap.Enabled) {
		s.emitEnabled(snap.Enabled)
		if !snap.Enabled {
			s.gate.StopWindow()
		}
	}
	view := s.local.Clone()
	s.emit(func() { s.hooks.OnDataSyncSuccess(changed, view) })
	s.emit(func() { s.hooks.OnLastUpdated(now) })
	return outcome
}

func (s *Session) onPollTimer(seq uint64) {
	s.mu.Lock()
	if s.closed || !s.sched.current(seq) {
		s.mu.Unlock()
		return
	}
	s.tickLocked()
	s.unlockAndDispatch()
}

func (s *Session) onIdleTimer(seq uint64) {
	s.mu.Lock()
	if s.closed || !s.activity.expireIdle(seq) {
		s.mu.Unlock()
		return
	}
	s.sched.Stop()
	s.logger.Info("polling suspended after inactivity", "idle_timeout", s.cfg.IdleTimeout)
	if h, ok := s.hooks.(IdleHook); ok {
		s.emit(h.OnIdleShutdown)
	}
	s.unlockAndDispatch()
}

func (s *Session) onSlowTimer(seq uint64) {
	s.mu.Lock()
	if s.closed || !s.activity.raiseSlow(seq) {
		s.mu.Unlock()
		return
	}
	s.logger.Warn("store is responding slowly", "threshold", s.cfg.SlowResponse)
	s.emitSlow(true)
	s.unlockAndDispatch()
}

func (s *Session) onCollectionWarning(seq uint64) {
	s.mu.Lock()
	if s.closed || !s.gate.current(seq) {
		s.mu.Unlock()
		return
	}
	remaining := s.gate.Remaining(s.clock.Now())
	s.logger.Info("collection window closing soon", "remaining", remaining)
	if h, ok := s.hooks.(ExpiryHook); ok {
		s.emit(func() { h.OnCollectionExpiring(remaining) })
	}
	s.unlockAndDispatch()
}

func (s *Session) onCollectionExpired(seq uint64) {
	s.mu.Lock()
	if s.closed || !s.gate.current(seq) {
		s.mu.Unlock()
		return
	}
	s.gate.StopWindow()
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Info("collection window elapsed")
	if err := s.setEnabled(ctx, false, false, false); err != nil && !errors.Is(err, ErrClosed) {
		s.mu.Lock()
		s.emit(func() { s.hooks.OnDataSyncError(err) })
		s.unlockAndDispatch()
	}
}

func (s *Session) layoutLocked() (variables, groups []string) {
	if s.fetched {
		return s.local.Variables, s.local.Groups
	}
	return s.info.Variables, s.info.Groups
}

func (s *Session) checkGroupLocked(op string, group int) error {
	if s.mode != classapi.ModeGrouped {
		return invalid(op, "session collects paired values")
	}
	_, groups := s.layoutLocked()
	count := max(1, len(groups))
	if group < 1 || group > count {
		return invalid(op, "group %d out of range 1..%d", group, count)
	}
	return nil
}

func (s *Session) checkNamedGroupLocked(op string, index int) error {
	if s.mode != classapi.ModeGrouped {
		return invalid(op, "paired sessions have no groups")
	}
	_, groups := s.layoutLocked()
	if index < 1 || index > len(groups) {
		return invalid(op, "group %d out of range 1..%d", index, len(groups))
	}
	return nil
}

func (s *Session) checkGateLocked(op string) error {
	if s.admin == "" && !s.gate.Enabled() {
		return invalid(op, "data collection is closed")
	}
	return nil
}

func checkValues(op string, values []float64) error {
	if len(values) == 0 {
		return invalid(op, "no values")
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(op, "value %v is not a finite number", v)
		}
	}
	return nil
}

func checkName(op, name string) error {
	if name == "" {
		return invalid(op, "name must not be empty")
	}
	return nil
}

func (s *Session) emit(fn func()) {
	s.events = append(s.events, fn)
}

func (s *Session) emitEnabled(enabled bool) {
	if enabled {
		s.emit(s.hooks.OnStudentEnabled)
	} else {
		s.emit(s.hooks.OnStudentDisabled)
	}
}

func (s *Session) emitSlow(slow bool) {
	if h, ok := s.hooks.(SlowHook); ok {
		s.emit(func() { h.OnSlowResponse(slow) })
	}
}

// unlockAndDispatch runs the hooks queued while the lock was held, then
// releases it. Only one goroutine dispatches at a time; anything queued
// meanwhile is drained by that goroutine in order.
func (s *Session) unlockAndDispatch() {
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.events) > 0 {
		events := s.events
		s.events = nil
		s.mu.Unlock()
		for _, fn := range events {
			fn()
		}
		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}
