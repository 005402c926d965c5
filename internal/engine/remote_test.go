package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/clock"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

var _ classapi.Remote = (*fakeRemote)(nil)

// fakeRemote is an in-memory store. Writes are recorded but only reflected
// in the snapshot when applyWrites is set.
type fakeRemote struct {
	mu          sync.Mutex
	snap        classapi.Snapshot
	info        classapi.SessionInfo
	applyWrites bool

	// onFetch runs before a fetch is served, outside the remote's lock.
	onFetch func()

	fetches     int
	bypassed    int
	fetchErr    error
	writeErr    error
	mutationErr error

	groupWrites []GroupBatch
	pairWrites  []Batch
	calls       []string
	enabledSets []bool
}

func newGroupedRemote(groups ...string) *fakeRemote {
	values := make([][]float64, max(1, len(groups)))
	return &fakeRemote{
		snap: classapi.Snapshot{
			Variables: []string{"Height"},
			Groups:    groups,
			Data:      classapi.Grouped{Values: values},
		},
		info: classapi.SessionInfo{Code: "ABCD", Variables: []string{"Height"}, Groups: groups, AdminValid: true},
	}
}

func newPairedRemote() *fakeRemote {
	return &fakeRemote{
		snap: classapi.Snapshot{
			Variables: []string{"Arm", "Height"},
			Data:      classapi.Paired{},
		},
		info: classapi.SessionInfo{Code: "ABCD", Variables: []string{"Arm", "Height"}, AdminValid: true},
	}
}

// opened starts the session with collection enabled, as a student would
// find it mid-class.
func (r *fakeRemote) opened() *fakeRemote {
	r.snap.Enabled = true
	return r
}

func (r *fakeRemote) setSnapshot(fn func(*classapi.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.snap.Clone()
	fn(&next)
	r.snap = next
}

// once arranges for fn to run while the next fetch is in flight.
func (r *fakeRemote) once(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFetch = fn
}

func (r *fakeRemote) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func (r *fakeRemote) FetchSnapshot(_ context.Context, _ string, opts classapi.FetchOptions) (classapi.Snapshot, error) {
	r.mu.Lock()
	hook := r.onFetch
	r.onFetch = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if opts.BypassCache {
		r.bypassed++
	}
	if r.fetchErr != nil {
		return classapi.Snapshot{}, r.fetchErr
	}
	return r.snap.Clone(), nil
}

func (r *fakeRemote) WriteGroup(_ context.Context, _ string, group int, values []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groupWrites = append(r.groupWrites, GroupBatch{Group: group, Values: append([]float64(nil), values...)})
	if r.writeErr != nil {
		return r.writeErr
	}
	if r.applyWrites {
		next := r.snap.Clone()
		g := next.Data.(classapi.Grouped)
		g.Values[group-1] = append(g.Values[group-1], values...)
		r.snap = next
	}
	return nil
}

func (r *fakeRemote) WritePairs(_ context.Context, _ string, xs, ys []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairWrites = append(r.pairWrites, Batch{X: append([]float64(nil), xs...), Y: append([]float64(nil), ys...)})
	if r.writeErr != nil {
		return r.writeErr
	}
	if r.applyWrites {
		p := r.snap.Data.(classapi.Paired)
		r.snap.Data = classapi.Paired{
			X: append(append([]float64(nil), p.X...), xs...),
			Y: append(append([]float64(nil), p.Y...), ys...),
		}
	}
	return nil
}

func (r *fakeRemote) record(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return r.mutationErr
}

func (r *fakeRemote) DeleteGroupPoint(_ context.Context, _ string, group int, value float64) error {
	return r.record("delete-point %d %v", group, value)
}

func (r *fakeRemote) DeletePair(_ context.Context, _ string, p classapi.Point) error {
	return r.record("delete-pair %v %v", p.X, p.Y)
}

func (r *fakeRemote) DeleteGroupData(_ context.Context, _, admin string, group int) error {
	return r.record("delete-group-data %s %d", admin, group)
}

func (r *fakeRemote) DeleteAll(_ context.Context, _, admin string) error {
	return r.record("delete-all %s", admin)
}

func (r *fakeRemote) RenameVariable(_ context.Context, _, admin string, index int, name string) error {
	if err := r.record("rename-variable %s %d %s", admin, index, name); err != nil {
		return err
	}
	r.setSnapshot(func(s *classapi.Snapshot) { s.Variables[index-1] = name })
	return nil
}

func (r *fakeRemote) RenameGroup(_ context.Context, _, admin string, index int, name string) error {
	if err := r.record("rename-group %s %d %s", admin, index, name); err != nil {
		return err
	}
	r.setSnapshot(func(s *classapi.Snapshot) { s.Groups[index-1] = name })
	return nil
}

func (r *fakeRemote) AddGroup(_ context.Context, _, admin, name string) error {
	return r.record("add-group %s %s", admin, name)
}

func (r *fakeRemote) DeleteGroup(_ context.Context, _, admin string, index int) error {
	return r.record("delete-group %s %d", admin, index)
}

func (r *fakeRemote) SetEnabled(_ context.Context, _, admin string, enabled bool) error {
	if err := r.record("set-enabled %s %v", admin, enabled); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabledSets = append(r.enabledSets, enabled)
	r.snap.Enabled = enabled
	return nil
}

func (r *fakeRemote) CreateSession(_ context.Context, spec classapi.NewSession) (classapi.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.Variables = spec.Variables
	r.info.Groups = spec.Groups
	r.snap.Variables = spec.Variables
	r.snap.Groups = spec.Groups
	return classapi.Credentials{Code: "NEWC", Admin: "tok", Expires: epoch.Add(24 * time.Hour)}, nil
}

func (r *fakeRemote) LookupSession(_ context.Context, code, admin string) (classapi.SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return classapi.SessionInfo{}, r.fetchErr
	}
	info := r.info
	info.Code = code
	info.Enabled = r.snap.Enabled
	info.AdminValid = admin != "" && r.info.AdminValid
	return info, nil
}

func (r *fakeRemote) ExtendExpiration(_ context.Context, _, admin string) (time.Time, error) {
	if err := r.record("extend %s", admin); err != nil {
		return time.Time{}, err
	}
	return epoch.Add(48 * time.Hour), nil
}

// recorder captures hook invocations in order.
type recorder struct {
	mu       sync.Mutex
	events   []string
	changed  []bool
	errs     []error
	fails    []error
	expiring []time.Duration
	slow     []bool
	idle     int
}

func (h *recorder) add(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recorder) OnInitBegin() { h.add("init-begin") }
func (h *recorder) OnInitEnd()   { h.add("init-end") }

func (h *recorder) OnDataSyncSuccess(changed bool, _ classapi.Snapshot) {
	h.mu.Lock()
	h.changed = append(h.changed, changed)
	h.mu.Unlock()
	h.add(fmt.Sprintf("sync changed=%v", changed))
}

func (h *recorder) OnDataSyncFail(err error) {
	h.mu.Lock()
	h.fails = append(h.fails, err)
	h.mu.Unlock()
	h.add("sync-fail")
}

func (h *recorder) OnDataSyncError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.add("sync-error")
}

func (h *recorder) OnStudentEnabled()  { h.add("enabled") }
func (h *recorder) OnStudentDisabled() { h.add("disabled") }

func (h *recorder) OnClassCodeSet(code string) { h.add("code " + code) }
func (h *recorder) OnAdminCodeSet(tok string)  { h.add("admin " + tok) }

func (h *recorder) OnVariableNameChanged(names []string) { h.add(fmt.Sprintf("variables %v", names)) }
func (h *recorder) OnGroupNameChanged(names []string)    { h.add(fmt.Sprintf("groups %v", names)) }

func (h *recorder) OnLastUpdated(time.Time) {}

func (h *recorder) OnIdleShutdown() {
	h.mu.Lock()
	h.idle++
	h.mu.Unlock()
	h.add("idle")
}

func (h *recorder) OnSlowResponse(slow bool) {
	h.mu.Lock()
	h.slow = append(h.slow, slow)
	h.mu.Unlock()
}

func (h *recorder) OnCollectionExpiring(remaining time.Duration) {
	h.mu.Lock()
	h.expiring = append(h.expiring, remaining)
	h.mu.Unlock()
}

func (h *recorder) count(ev string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (h *recorder) changedTrue() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.changed {
		if c {
			n++
		}
	}
	return n
}

type harness struct {
	remote  *fakeRemote
	hooks   *recorder
	clock   *clock.FakeClock
	session *Session
}

func join(t *testing.T, remote *fakeRemote, admin string, cfg Config) *harness {
	t.Helper()
	h := &harness{remote: remote, hooks: &recorder{}, clock: clock.Fake(epoch)}
	s, err := Join(context.Background(), "abcd", admin, Options{
		Remote: remote,
		Hooks:  h.hooks,
		Clock:  h.clock,
		Config: cfg,
	})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	t.Cleanup(s.Close)
	h.session = s
	return h
}
