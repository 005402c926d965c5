package app

import (
	"log/slog"
	"time"

	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/engine"
	"github.com/five82/tally/internal/state"
)

var (
	_ engine.Hooks      = (*storeHooks)(nil)
	_ engine.IdleHook   = (*storeHooks)(nil)
	_ engine.SlowHook   = (*storeHooks)(nil)
	_ engine.ExpiryHook = (*storeHooks)(nil)
)

// storeHooks mirrors engine callbacks into the UI's state.Store.
type storeHooks struct {
	store  *state.Store
	logger *slog.Logger
}

func newStoreHooks(store *state.Store, logger *slog.Logger) *storeHooks {
	return &storeHooks{store: store, logger: logger.With("component", "hooks")}
}

func (h *storeHooks) OnInitBegin() { h.store.SetLoading(true) }
func (h *storeHooks) OnInitEnd()   { h.store.SetLoading(false) }

func (h *storeHooks) OnDataSyncSuccess(changed bool, snap classapi.Snapshot) {
	h.store.Update(changed, snap)
}

func (h *storeHooks) OnDataSyncFail(err error) {
	h.logger.Debug("sync failed", "error", err)
	h.store.RecordFailure(err)
}

func (h *storeHooks) OnDataSyncError(err error) {
	h.logger.Debug("sync error", "error", err)
	h.store.RecordFailure(err)
}

func (h *storeHooks) OnStudentEnabled()  { h.store.SetEnabled(true) }
func (h *storeHooks) OnStudentDisabled() { h.store.SetEnabled(false) }

func (h *storeHooks) OnClassCodeSet(code string)       { h.store.Reset(code) }
func (h *storeHooks) OnAdminCodeSet(token string)      { h.store.SetAdmin(token) }
func (h *storeHooks) OnLastUpdated(t time.Time)        { h.store.SetLastUpdated(t) }
func (h *storeHooks) OnVariableNameChanged(n []string) { h.store.SetVariables(n) }
func (h *storeHooks) OnGroupNameChanged(n []string)    { h.store.SetGroups(n) }

func (h *storeHooks) OnIdleShutdown() {
	h.logger.Info("polling suspended after inactivity")
	h.store.SetIdle(true)
}

func (h *storeHooks) OnSlowResponse(slow bool) { h.store.SetSlow(slow) }

func (h *storeHooks) OnCollectionExpiring(remaining time.Duration) {
	h.store.SetCollectionRemaining(remaining)
}
