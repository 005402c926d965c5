package engine

import (
	"time"

	"github.com/five82/tally/internal/classapi"
)

// Hooks is implemented by the host to observe a Session. Hooks are called
// without the session lock held, so they may call back into the Session.
// Calls are serialized and delivered in the order the engine produced
// them, but not always on the caller's goroutine: a timer callback or
// another caller may deliver them, and hooks triggered from inside a hook
// run after it returns.
type Hooks interface {
	OnInitBegin()
	OnInitEnd()
	// OnDataSyncSuccess reports a completed cycle. changed is false for an
	// unchanged fetch and for the fetch that directly follows a flush.
	OnDataSyncSuccess(changed bool, snap classapi.Snapshot)
	// OnDataSyncFail reports a transport failure.
	OnDataSyncFail(err error)
	// OnDataSyncError reports an error returned by the store, a dropped
	// write, or a missing session.
	OnDataSyncError(err error)
	OnStudentEnabled()
	OnStudentDisabled()
	OnClassCodeSet(code string)
	OnVariableNameChanged(names []string)
	OnGroupNameChanged(names []string)
	OnAdminCodeSet(token string)
	OnLastUpdated(t time.Time)
}

// IdleHook is implemented by hosts that want to know when polling was
// suspended for inactivity.
type IdleHook interface {
	OnIdleShutdown()
}

// SlowHook is implemented by hosts that surface slow-response warnings.
// slow is true when the warning is raised and false when it clears.
type SlowHook interface {
	OnSlowResponse(slow bool)
}

// ExpiryHook is implemented by admin hosts that offer to renew the
// collection window before it closes.
type ExpiryHook interface {
	OnCollectionExpiring(remaining time.Duration)
}

// NopHooks implements Hooks with no-ops. Embed it to override a subset.
type NopHooks struct{}

func (NopHooks) OnInitBegin()                              {}
func (NopHooks) OnInitEnd()                                {}
func (NopHooks) OnDataSyncSuccess(bool, classapi.Snapshot) {}
func (NopHooks) OnDataSyncFail(error)                      {}
func (NopHooks) OnDataSyncError(error)                     {}
func (NopHooks) OnStudentEnabled()                         {}
func (NopHooks) OnStudentDisabled()                        {}
func (NopHooks) OnClassCodeSet(string)                     {}
func (NopHooks) OnVariableNameChanged([]string)            {}
func (NopHooks) OnGroupNameChanged([]string)               {}
func (NopHooks) OnAdminCodeSet(string)                     {}
func (NopHooks) OnLastUpdated(time.Time)                   {}

var _ Hooks = NopHooks{}
