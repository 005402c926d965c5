package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/clock"
)

var stockConfig = Config{
	DefaultInterval: 3000 * time.Millisecond,
	MaxInterval:     20000 * time.Millisecond,
}

func TestJoin_AnnouncesSessionAndRunsFirstCycle(t *testing.T) {
	h := join(t, newGroupedRemote("A", "B"), "", stockConfig)

	want := []string{
		"init-begin",
		"code ABCD",
		"disabled",
		"variables [Height]",
		"groups [A B]",
		"sync changed=true",
		"init-end",
	}
	if !reflect.DeepEqual(h.hooks.events, want) {
		t.Fatalf("events = %q, want %q", h.hooks.events, want)
	}
	if _, ok := h.session.Snapshot(); !ok {
		t.Fatalf("Snapshot not available after Join")
	}
	st := h.session.Status()
	if st.Interval != 3*time.Second || !st.Polling || st.Admin {
		t.Fatalf("status = %+v", st)
	}
}

func TestJoin_RejectsBadAdminToken(t *testing.T) {
	remote := newGroupedRemote()
	remote.info.AdminValid = false
	_, err := Join(context.Background(), "abcd", "wrong", Options{Remote: remote})
	if !errors.Is(err, ErrAdminRejected) {
		t.Fatalf("Join error = %v, want ErrAdminRejected", err)
	}
}

func TestJoin_UnknownCode(t *testing.T) {
	remote := newGroupedRemote()
	remote.fetchErr = fmt.Errorf("lookup session: %w", classapi.ErrSessionNotFound)
	_, err := Join(context.Background(), "nope", "", Options{Remote: remote})
	if !errors.Is(err, classapi.ErrSessionNotFound) {
		t.Fatalf("Join error = %v, want ErrSessionNotFound", err)
	}

	if _, err := Join(context.Background(), "   ", "", Options{Remote: remote}); !IsValidation(err) {
		t.Fatalf("Join with blank code error = %v, want validation error", err)
	}
}

func TestCreate_ValidatesAndJoinsAsAdmin(t *testing.T) {
	remote := newGroupedRemote()
	_, err := Create(context.Background(), classapi.NewSession{Variables: []string{"X", "Y"}, Groups: []string{"A"}}, Options{Remote: remote})
	if !IsValidation(err) {
		t.Fatalf("paired session with groups: error = %v, want validation", err)
	}
	if _, err := Create(context.Background(), classapi.NewSession{}, Options{Remote: remote}); !IsValidation(err) {
		t.Fatalf("session without variables: error = %v, want validation", err)
	}

	hooks := &recorder{}
	s, err := Create(context.Background(), classapi.NewSession{Variables: []string{"Height"}, Groups: []string{"A", "B"}}, Options{
		Remote: remote,
		Hooks:  hooks,
		Config: stockConfig,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	t.Cleanup(s.Close)
	if s.Code() != "NEWC" || !s.IsAdmin() {
		t.Fatalf("session code = %q admin = %v", s.Code(), s.IsAdmin())
	}
	if hooks.count("admin tok") != 1 {
		t.Fatalf("OnAdminCodeSet not called: %q", hooks.events)
	}
}

func TestSession_IntervalBacksOffAndResets(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	for i, want := range []time.Duration{6 * time.Second, 12 * time.Second, 20 * time.Second, 20 * time.Second} {
		before := h.remote.fetchCount()
		h.clock.Advance(h.session.Status().Interval)
		if h.remote.fetchCount() != before+1 {
			t.Fatalf("cycle %d: fetches = %d, want %d", i, h.remote.fetchCount(), before+1)
		}
		if got := h.session.Status().Interval; got != want {
			t.Fatalf("cycle %d: interval = %v, want %v", i, got, want)
		}
	}

	h.remote.setSnapshot(func(s *classapi.Snapshot) {
		s.Data = classapi.Grouped{Values: [][]float64{{170}}}
	})
	h.clock.Advance(20 * time.Second)
	if got := h.session.Status().Interval; got != 3*time.Second {
		t.Fatalf("after change interval = %v, want 3s", got)
	}
	if last := h.hooks.changed[len(h.hooks.changed)-1]; !last {
		t.Fatalf("changed fetch reported changed=false")
	}
}

func TestSession_TransportFailureJumpsToMax(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	h.remote.mu.Lock()
	h.remote.fetchErr = &classapi.TransportError{Op: "fetch snapshot", Err: errors.New("connection refused")}
	h.remote.mu.Unlock()

	h.clock.Advance(3 * time.Second)
	if got := h.session.Status().Interval; got != 20*time.Second {
		t.Fatalf("interval after transport failure = %v, want 20s", got)
	}
	if len(h.hooks.fails) != 1 || !classapi.IsTransport(h.hooks.fails[0]) {
		t.Fatalf("OnDataSyncFail calls = %v", h.hooks.fails)
	}
	if h.session.Status().LastError == nil {
		t.Fatalf("LastError not recorded")
	}

	// Polling continues at the maximum until a change arrives.
	h.remote.mu.Lock()
	h.remote.fetchErr = nil
	h.remote.mu.Unlock()
	h.clock.Advance(20 * time.Second)
	if got := h.session.Status().Interval; got != 20*time.Second {
		t.Fatalf("interval after recovery = %v, want 20s", got)
	}
	if h.session.Status().LastError != nil {
		t.Fatalf("LastError not cleared after a successful fetch")
	}
}

func TestSession_StoreErrorOnReadIsRecoverable(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	h.remote.mu.Lock()
	h.remote.fetchErr = &classapi.StoreError{Op: "fetch snapshot", Status: 500, Message: "database locked"}
	h.remote.mu.Unlock()

	h.clock.Advance(3 * time.Second)
	if got := h.session.Status().Interval; got != 20*time.Second {
		t.Fatalf("interval = %v, want 20s", got)
	}
	if len(h.hooks.errs) != 1 || !classapi.IsStore(h.hooks.errs[0]) {
		t.Fatalf("OnDataSyncError calls = %v", h.hooks.errs)
	}
	if h.session.Status().Closed {
		t.Fatalf("store error closed the session")
	}
}

func TestSession_MissingSessionClosesItself(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	h.remote.mu.Lock()
	h.remote.fetchErr = fmt.Errorf("fetch snapshot: %w", classapi.ErrSessionNotFound)
	h.remote.mu.Unlock()

	h.clock.Advance(3 * time.Second)
	if !h.session.Status().Closed {
		t.Fatalf("session still open after not-found")
	}
	if len(h.hooks.errs) != 1 || !errors.Is(h.hooks.errs[0], classapi.ErrSessionNotFound) {
		t.Fatalf("OnDataSyncError calls = %v", h.hooks.errs)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("timers still pending after teardown: %d", h.clock.Pending())
	}
	if err := h.session.Enqueue(1, 5); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after teardown = %v, want ErrClosed", err)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	h.session.Close()
	h.session.Close()

	before := h.remote.fetchCount()
	h.clock.Advance(time.Hour)
	if h.remote.fetchCount() != before {
		t.Fatalf("closed session kept polling")
	}
	h.session.Refresh()
	if h.remote.fetchCount() != before {
		t.Fatalf("Refresh on closed session fetched")
	}
}

func TestSession_CloseDuringFlightDiscardsResult(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)
	events := len(h.hooks.events)

	h.remote.setSnapshot(func(s *classapi.Snapshot) {
		s.Data = classapi.Grouped{Values: [][]float64{{1}}}
	})
	h.remote.once(h.session.Close)
	h.session.Refresh()

	if len(h.hooks.events) != events {
		t.Fatalf("hooks fired after Close: %q", h.hooks.events[events:])
	}
	if snap, _ := h.session.Snapshot(); snap.Data.Len() != 0 {
		t.Fatalf("in-flight result was applied after Close")
	}
}

func TestSession_EnqueueFlushRoundTrip(t *testing.T) {
	h := join(t, newGroupedRemote("A", "B").opened(), "", stockConfig)
	before, _ := h.session.Snapshot()

	if err := h.session.Enqueue(2, 1.5, 2.5); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if h.session.Pending() != 2 || len(h.remote.groupWrites) != 0 {
		t.Fatalf("Enqueue flushed outside a cycle: pending=%d writes=%v", h.session.Pending(), h.remote.groupWrites)
	}

	h.clock.Advance(3 * time.Second)
	if h.session.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0 after flush", h.session.Pending())
	}
	want := []GroupBatch{{Group: 2, Values: []float64{1.5, 2.5}}}
	if !reflect.DeepEqual(h.remote.groupWrites, want) {
		t.Fatalf("writes = %#v, want %#v", h.remote.groupWrites, want)
	}
	after, _ := h.session.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("local snapshot changed without a fetch reflecting it: %#v", after)
	}
	if h.remote.bypassed != 0 {
		t.Fatalf("non-admin fetch bypassed the cache")
	}
}

func TestSession_FetchAfterFlushIsNotBroadcast(t *testing.T) {
	remote := newGroupedRemote().opened()
	remote.applyWrites = true
	h := join(t, remote, "", stockConfig)
	// Grow the interval so the reset below is observable.
	h.clock.Advance(3 * time.Second)
	broadcasts := h.hooks.changedTrue()

	if err := h.session.Enqueue(1, 4); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	// The 6s tick is pulled in to the default interval.
	h.clock.Advance(3 * time.Second)
	if h.hooks.changedTrue() != broadcasts {
		t.Fatalf("fetch following a flush was broadcast as changed")
	}
	if last := h.hooks.changed[len(h.hooks.changed)-1]; last {
		t.Fatalf("last OnDataSyncSuccess changed = true, want false")
	}
	snap, _ := h.session.Snapshot()
	if got := snap.Data.(classapi.Grouped).Group(1); !slices.Equal(got, []float64{4}) {
		t.Fatalf("local snapshot = %v, want the fetched values", got)
	}
	if got := h.session.Status().Interval; got != 3*time.Second {
		t.Fatalf("interval after flush cycle = %v, want default", got)
	}

	// The next cycle diffs normally against the silently installed data.
	h.clock.Advance(3 * time.Second)
	if h.hooks.changedTrue() != broadcasts {
		t.Fatalf("unchanged fetch after suppression was broadcast")
	}
	if got := h.session.Status().Interval; got != 6*time.Second {
		t.Fatalf("interval = %v, want 6s", got)
	}
}

func TestSession_AdminFlushBypassesCache(t *testing.T) {
	h := join(t, newGroupedRemote(), "tok", stockConfig)
	if h.remote.bypassed != 0 {
		t.Fatalf("join fetch bypassed cache")
	}
	if err := h.session.Enqueue(1, 1); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	if h.remote.bypassed != 1 {
		t.Fatalf("bypassed = %d, want 1", h.remote.bypassed)
	}
	h.clock.Advance(3 * time.Second)
	if h.remote.bypassed != 1 {
		t.Fatalf("ordinary tick bypassed cache")
	}
}

func TestSession_WritesQueuedDuringFlightShareNextFlush(t *testing.T) {
	h := join(t, newGroupedRemote("A", "B").opened(), "", stockConfig)
	// Back off so the follow-up tick has to be pulled in.
	h.clock.Advance(3 * time.Second)

	h.remote.once(func() {
		if err := h.session.Enqueue(1, 10); err != nil {
			t.Errorf("Enqueue: %v", err)
		}
		if err := h.session.Enqueue(2, 20, 21); err != nil {
			t.Errorf("Enqueue: %v", err)
		}
		if err := h.session.Enqueue(1, 11); err != nil {
			t.Errorf("Enqueue: %v", err)
		}
	})
	before := h.remote.fetchCount()
	h.session.Refresh()

	if got := h.remote.fetchCount(); got != before+1 {
		t.Fatalf("fetches = %d, want %d", got, before+1)
	}
	if h.session.Pending() != 4 || len(h.remote.groupWrites) != 0 {
		t.Fatalf("writes queued in flight went out early: pending=%d", h.session.Pending())
	}

	h.clock.Advance(3 * time.Second)
	writes := slices.Clone(h.remote.groupWrites)
	slices.SortFunc(writes, func(a, b GroupBatch) int { return a.Group - b.Group })
	want := []GroupBatch{
		{Group: 1, Values: []float64{10, 11}},
		{Group: 2, Values: []float64{20, 21}},
	}
	if !reflect.DeepEqual(writes, want) {
		t.Fatalf("writes = %#v, want %#v", writes, want)
	}
}

func TestSession_EnqueueRespectsCollectionGate(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	if err := h.session.Enqueue(1, 5); !IsValidation(err) {
		t.Fatalf("Enqueue while closed = %v, want validation error", err)
	}
	h.clock.Advance(3 * time.Second)
	if h.session.Pending() != 0 || len(h.remote.groupWrites) != 0 || len(h.hooks.errs) != 0 {
		t.Fatalf("closed-collection write reached the store: writes=%v errs=%v", h.remote.groupWrites, h.hooks.errs)
	}

	h.remote.setSnapshot(func(s *classapi.Snapshot) { s.Enabled = true })
	h.session.Refresh()
	if err := h.session.Enqueue(1, 5); err != nil {
		t.Fatalf("Enqueue after opening returned error: %v", err)
	}

	admin := join(t, newGroupedRemote(), "tok", stockConfig)
	if err := admin.session.Enqueue(1, 7); err != nil {
		t.Fatalf("admin Enqueue while closed returned error: %v", err)
	}
}

func TestSession_EnqueueExpeditesBackedOffTick(t *testing.T) {
	h := join(t, newGroupedRemote().opened(), "", stockConfig)
	h.clock.Advance(3 * time.Second)
	h.clock.Advance(6 * time.Second)
	if got := h.session.Status().Interval; got != 12*time.Second {
		t.Fatalf("interval = %v, want 12s", got)
	}
	before := h.remote.fetchCount()

	if err := h.session.Enqueue(1, 1); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if h.remote.fetchCount() != before {
		t.Fatalf("Enqueue ran a cycle while polling was active")
	}
	h.clock.Advance(3 * time.Second)
	if h.remote.fetchCount() != before+1 || len(h.remote.groupWrites) != 1 {
		t.Fatalf("queued value not flushed within the default interval")
	}
}

func TestSession_FailedWriteIsDroppedAndReported(t *testing.T) {
	h := join(t, newGroupedRemote().opened(), "", stockConfig)
	h.remote.mu.Lock()
	h.remote.writeErr = &classapi.StoreError{Op: "write group", Message: "collection is closed"}
	h.remote.mu.Unlock()

	if err := h.session.Enqueue(1, 9); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	if len(h.hooks.errs) != 1 || !classapi.IsStore(h.hooks.errs[0]) {
		t.Fatalf("OnDataSyncError calls = %v", h.hooks.errs)
	}

	h.clock.Advance(time.Minute)
	if len(h.remote.groupWrites) != 1 {
		t.Fatalf("failed batch was retried: %d writes", len(h.remote.groupWrites))
	}
	if h.session.Pending() != 0 {
		t.Fatalf("failed batch re-queued")
	}
}

func TestSession_EnqueueValidation(t *testing.T) {
	h := join(t, newGroupedRemote("A", "B").opened(), "", stockConfig)

	tests := []struct {
		name   string
		group  int
		values []float64
	}{
		{"group zero", 0, []float64{1}},
		{"group past end", 3, []float64{1}},
		{"no values", 1, nil},
		{"nan", 1, []float64{1, nan()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.session.Enqueue(tt.group, tt.values...); !IsValidation(err) {
				t.Fatalf("Enqueue error = %v, want validation error", err)
			}
		})
	}
	if err := h.session.EnqueuePairs(classapi.Point{X: 1, Y: 2}); !IsValidation(err) {
		t.Fatalf("EnqueuePairs on grouped session = %v, want validation error", err)
	}
	if len(h.remote.groupWrites) != 0 {
		t.Fatalf("rejected input reached the store")
	}
}

func TestSession_PairedFlushIsOneCall(t *testing.T) {
	h := join(t, newPairedRemote().opened(), "", stockConfig)

	if err := h.session.EnqueuePairs(classapi.Point{X: 1, Y: 2}, classapi.Point{X: 3, Y: 4}); err != nil {
		t.Fatalf("EnqueuePairs returned error: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	want := []Batch{{X: []float64{1, 3}, Y: []float64{2, 4}}}
	if !reflect.DeepEqual(h.remote.pairWrites, want) {
		t.Fatalf("pair writes = %#v, want %#v", h.remote.pairWrites, want)
	}
	if err := h.session.Enqueue(1, 5); !IsValidation(err) {
		t.Fatalf("Enqueue on paired session = %v, want validation error", err)
	}
	if err := h.session.DeletePair(context.Background(), classapi.Point{X: 1, Y: 2}); err != nil {
		t.Fatalf("DeletePair returned error: %v", err)
	}
}

func TestSession_IdleSuspendsAndEnqueueResumes(t *testing.T) {
	h := join(t, newGroupedRemote().opened(), "", stockConfig)

	h.clock.Step(300000*time.Millisecond, time.Second)
	if h.hooks.idle != 1 {
		t.Fatalf("OnIdleShutdown calls = %d, want 1", h.hooks.idle)
	}
	st := h.session.Status()
	if st.Polling || !st.Idle {
		t.Fatalf("status after idle = %+v", st)
	}

	suspended := h.remote.fetchCount()
	h.clock.Step(time.Minute, time.Second)
	if h.remote.fetchCount() != suspended {
		t.Fatalf("polled while suspended")
	}

	if err := h.session.Enqueue(1, 3); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if h.remote.fetchCount() != suspended+1 {
		t.Fatalf("Enqueue did not tick immediately")
	}
	st = h.session.Status()
	if !st.Polling || st.Idle {
		t.Fatalf("status after resume = %+v", st)
	}
	h.clock.Advance(3 * time.Second)
	if h.remote.fetchCount() != suspended+2 {
		t.Fatalf("polling did not restart after resume")
	}
}

func TestSession_ChangedFetchPostponesIdle(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	h.clock.Step(4*time.Minute, time.Second)
	h.remote.setSnapshot(func(s *classapi.Snapshot) {
		s.Data = classapi.Grouped{Values: [][]float64{{1}}}
	})
	h.clock.Step(2*time.Minute, time.Second)
	if h.hooks.idle != 0 {
		t.Fatalf("went idle despite a changed fetch")
	}
	h.clock.Step(4*time.Minute, time.Second)
	if h.hooks.idle != 1 {
		t.Fatalf("OnIdleShutdown calls = %d, want 1", h.hooks.idle)
	}
}

func TestSession_SlowResponseWarnsOnceAndClears(t *testing.T) {
	cfg := stockConfig
	cfg.SlowResponse = 8 * time.Second
	h := join(t, newGroupedRemote(), "", cfg)

	for range 3 {
		h.remote.once(func() { h.clock.Advance(9 * time.Second) })
		h.session.ForceTick()
	}
	if !reflect.DeepEqual(h.hooks.slow, []bool{true}) {
		t.Fatalf("OnSlowResponse calls while the store stays slow = %v, want [true]", h.hooks.slow)
	}
	if !h.session.Status().Slow {
		t.Fatalf("slow flag cleared by a late response")
	}

	h.session.Refresh()
	if !reflect.DeepEqual(h.hooks.slow, []bool{true, false}) {
		t.Fatalf("OnSlowResponse calls = %v, want [true false]", h.hooks.slow)
	}
	if h.session.Status().Slow {
		t.Fatalf("slow flag still set after a prompt response")
	}

	h.session.Refresh()
	if len(h.hooks.slow) != 2 {
		t.Fatalf("prompt response raised a warning: %v", h.hooks.slow)
	}
}

func TestSession_LateResponseRaisesWithoutTimer(t *testing.T) {
	cfg := stockConfig
	cfg.SlowResponse = 8 * time.Second
	h := join(t, newGroupedRemote(), "", cfg)

	// Stop the armed timer so only the measured round trip can raise.
	h.remote.once(func() {
		h.session.activity.disarmSlow()
		h.clock.Advance(9 * time.Second)
	})
	h.session.ForceTick()
	if !reflect.DeepEqual(h.hooks.slow, []bool{true}) {
		t.Fatalf("OnSlowResponse calls = %v, want [true]", h.hooks.slow)
	}
}

func TestSession_RefreshCoalescesWhileInFlight(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)
	before := h.remote.fetchCount()

	h.remote.once(func() {
		h.session.ForceTick()
		h.session.ForceTick()
	})
	h.session.Refresh()

	if got := h.remote.fetchCount(); got != before+2 {
		t.Fatalf("fetches = %d, want %d", got, before+2)
	}
}

func TestSession_SetEnabledRequiresAdmin(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)
	ctx := context.Background()

	if err := h.session.SetEnabled(ctx, true, true); !IsValidation(err) {
		t.Fatalf("SetEnabled error = %v, want validation error", err)
	}
	if err := h.session.DeleteAll(ctx); !IsValidation(err) {
		t.Fatalf("DeleteAll error = %v, want validation error", err)
	}
	if _, err := h.session.Extend(ctx); !IsValidation(err) {
		t.Fatalf("Extend error = %v, want validation error", err)
	}
	if len(h.remote.calls) != 0 {
		t.Fatalf("privileged calls reached the store: %v", h.remote.calls)
	}
	if err := h.session.DeletePoint(ctx, 1, 2); err != nil {
		t.Fatalf("DeletePoint returned error: %v", err)
	}
	if !reflect.DeepEqual(h.remote.calls, []string{"delete-point 1 2"}) {
		t.Fatalf("calls = %v", h.remote.calls)
	}
}

func TestSession_CollectionWindow(t *testing.T) {
	cfg := stockConfig
	cfg.IdleTimeout = -1
	h := join(t, newGroupedRemote(), "tok", cfg)
	ctx := context.Background()

	if err := h.session.SetEnabled(ctx, true, true); err != nil {
		t.Fatalf("SetEnabled returned error: %v", err)
	}
	if h.hooks.count("enabled") != 1 {
		t.Fatalf("enabled notices = %d, want 1", h.hooks.count("enabled"))
	}
	if got := h.session.Status().CollectionDeadline; !got.Equal(epoch.Add(15 * time.Minute)) {
		t.Fatalf("deadline = %v", got)
	}

	// A redundant enable restarts the window without a second notice.
	h.clock.Advance(10 * time.Minute)
	if err := h.session.SetEnabled(ctx, true, true); err != nil {
		t.Fatalf("SetEnabled returned error: %v", err)
	}
	if h.hooks.count("enabled") != 1 {
		t.Fatalf("redundant enable produced a notice")
	}
	if got := h.session.Status().CollectionDeadline; !got.Equal(epoch.Add(25 * time.Minute)) {
		t.Fatalf("deadline after renew = %v", got)
	}

	h.clock.Advance(10 * time.Minute)
	if len(h.hooks.expiring) != 0 || !h.session.Status().Enabled {
		t.Fatalf("window closed early")
	}
	h.clock.Advance(4 * time.Minute)
	if !reflect.DeepEqual(h.hooks.expiring, []time.Duration{time.Minute}) {
		t.Fatalf("expiry warnings = %v, want [1m]", h.hooks.expiring)
	}
	h.clock.Advance(time.Minute)

	if want := []bool{true, true, false}; !reflect.DeepEqual(h.remote.enabledSets, want) {
		t.Fatalf("enabled writes = %v, want %v", h.remote.enabledSets, want)
	}
	st := h.session.Status()
	if st.Enabled || !st.CollectionDeadline.IsZero() {
		t.Fatalf("status after expiry = %+v", st)
	}
	if h.hooks.count("disabled") != 2 {
		t.Fatalf("disabled notices = %d, want 2 (join and expiry)", h.hooks.count("disabled"))
	}
}

func TestSession_RenewRestartsWindow(t *testing.T) {
	cfg := stockConfig
	cfg.IdleTimeout = -1
	cfg.CollectionWindow = 10 * time.Minute
	cfg.CollectionWarning = 2 * time.Minute
	h := join(t, newGroupedRemote(), "tok", cfg)
	ctx := context.Background()

	if err := h.session.SetEnabled(ctx, true, true); err != nil {
		t.Fatalf("SetEnabled returned error: %v", err)
	}
	h.clock.Advance(8 * time.Minute)
	if len(h.hooks.expiring) != 1 {
		t.Fatalf("warning not delivered")
	}
	if err := h.session.Renew(ctx); err != nil {
		t.Fatalf("Renew returned error: %v", err)
	}
	h.clock.Advance(5 * time.Minute)
	if !h.session.Status().Enabled {
		t.Fatalf("collection closed despite renew")
	}
}

func TestSession_StudentSeesEnableFromFetch(t *testing.T) {
	h := join(t, newGroupedRemote(), "", stockConfig)

	h.remote.setSnapshot(func(s *classapi.Snapshot) { s.Enabled = true })
	h.clock.Advance(3 * time.Second)
	if h.hooks.count("enabled") != 1 || !h.session.Status().Enabled {
		t.Fatalf("enable not observed: %q", h.hooks.events)
	}
	h.clock.Advance(6 * time.Second)
	if h.hooks.count("enabled") != 1 {
		t.Fatalf("duplicate enable notice")
	}
}

func TestSession_AdminMutations(t *testing.T) {
	h := join(t, newGroupedRemote("A", "B"), "tok", stockConfig)
	ctx := context.Background()

	if err := h.session.RenameGroup(ctx, 2, "  Control "); err != nil {
		t.Fatalf("RenameGroup returned error: %v", err)
	}
	if h.hooks.count("groups [A Control]") != 1 {
		t.Fatalf("group rename not observed: %q", h.hooks.events)
	}
	if err := h.session.RenameVariable(ctx, 1, "Arm span"); err != nil {
		t.Fatalf("RenameVariable returned error: %v", err)
	}
	if h.hooks.count("variables [Arm span]") != 1 {
		t.Fatalf("variable rename not observed: %q", h.hooks.events)
	}

	for name, err := range map[string]error{
		"rename group out of range": h.session.RenameGroup(ctx, 3, "X"),
		"rename variable blank":     h.session.RenameVariable(ctx, 1, "   "),
		"delete group zero":         h.session.DeleteGroup(ctx, 0),
		"delete data out of range":  h.session.DeleteGroupData(ctx, 9),
		"add group blank":           h.session.AddGroup(ctx, ""),
	} {
		if !IsValidation(err) {
			t.Fatalf("%s: error = %v, want validation error", name, err)
		}
	}

	if err := h.session.AddGroup(ctx, "C"); err != nil {
		t.Fatalf("AddGroup returned error: %v", err)
	}
	if err := h.session.DeleteGroupData(ctx, 1); err != nil {
		t.Fatalf("DeleteGroupData returned error: %v", err)
	}
	if err := h.session.DeleteGroup(ctx, 1); err != nil {
		t.Fatalf("DeleteGroup returned error: %v", err)
	}
	if err := h.session.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	expires, err := h.session.Extend(ctx)
	if err != nil {
		t.Fatalf("Extend returned error: %v", err)
	}
	if !h.session.Status().Expires.Equal(expires) {
		t.Fatalf("Expires not updated")
	}

	want := []string{
		"rename-group tok 2 Control",
		"rename-variable tok 1 Arm span",
		"add-group tok C",
		"delete-group-data tok 1",
		"delete-group tok 1",
		"delete-all tok",
		"extend tok",
	}
	if !reflect.DeepEqual(h.remote.calls, want) {
		t.Fatalf("calls = %q, want %q", h.remote.calls, want)
	}
}

func TestSession_MutationAgainstMissingSessionCloses(t *testing.T) {
	h := join(t, newGroupedRemote(), "tok", stockConfig)
	h.remote.mu.Lock()
	h.remote.mutationErr = fmt.Errorf("delete all: %w", classapi.ErrSessionNotFound)
	h.remote.mu.Unlock()

	err := h.session.DeleteAll(context.Background())
	if !errors.Is(err, classapi.ErrSessionNotFound) {
		t.Fatalf("DeleteAll error = %v, want ErrSessionNotFound", err)
	}
	if !h.session.Status().Closed {
		t.Fatalf("session still open")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

// reentrantHooks ticks the session from inside a hook and tracks nesting.
type reentrantHooks struct {
	*recorder
	session  func() *Session
	depth    int
	maxDepth int
	ticked   bool
}

func (r *reentrantHooks) OnDataSyncSuccess(changed bool, snap classapi.Snapshot) {
	r.depth++
	r.maxDepth = max(r.maxDepth, r.depth)
	r.recorder.OnDataSyncSuccess(changed, snap)
	if s := r.session(); s != nil && !r.ticked {
		r.ticked = true
		s.ForceTick()
		r.add("after-tick")
	}
	r.depth--
}

func TestSession_HooksAreSerializedInOrder(t *testing.T) {
	remote := newGroupedRemote()
	clk := clock.Fake(epoch)
	var session *Session
	hooks := &reentrantHooks{recorder: &recorder{}, session: func() *Session { return session }}
	s, err := Join(context.Background(), "abcd", "", Options{Remote: remote, Hooks: hooks, Clock: clk, Config: stockConfig})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	t.Cleanup(s.Close)
	session = s

	s.Refresh()

	if hooks.maxDepth != 1 {
		t.Fatalf("hook ran nested inside another hook (depth %d)", hooks.maxDepth)
	}
	var tail []string
	for _, ev := range hooks.events {
		if ev == "after-tick" || strings.HasPrefix(ev, "sync") {
			tail = append(tail, ev)
		}
	}
	want := []string{"sync changed=true", "sync changed=false", "after-tick", "sync changed=false"}
	if !reflect.DeepEqual(tail, want) {
		t.Fatalf("hook order = %v, want %v", tail, want)
	}
}
