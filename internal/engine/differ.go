package engine

import (
	"slices"

	"github.com/five82/tally/internal/classapi"
)

// DiffResult describes how a fetched snapshot differs from the local one.
type DiffResult struct {
	// Changed is true when anything observable differs.
	Changed          bool
	DataChanged      bool
	VariablesRenamed bool
	GroupsRenamed    bool
	EnabledChanged   bool
	// Snapshot is the value to install as the new local snapshot.
	Snapshot classapi.Snapshot
}

// Diff compares next against prev structurally. It has no side effects and
// does not retain either argument.
func Diff(prev, next classapi.Snapshot) DiffResult {
	res := DiffResult{
		VariablesRenamed: !slices.Equal(prev.Variables, next.Variables),
		GroupsRenamed:    !slices.Equal(prev.Groups, next.Groups),
		EnabledChanged:   prev.Enabled != next.Enabled,
		DataChanged:      !dataEqual(prev.Data, next.Data),
	}
	res.Changed = res.DataChanged || res.VariablesRenamed || res.GroupsRenamed || res.EnabledChanged
	res.Snapshot = next.Clone()
	return res
}

func dataEqual(a, b classapi.Data) bool {
	if a == nil || b == nil {
		return lenOf(a) == 0 && lenOf(b) == 0
	}
	switch av := a.(type) {
	case classapi.Grouped:
		bv, ok := b.(classapi.Grouped)
		if !ok {
			return false
		}
		return slices.EqualFunc(av.Values, bv.Values, func(x, y []float64) bool {
			return slices.Equal(x, y)
		})
	case classapi.Paired:
		bv, ok := b.(classapi.Paired)
		if !ok {
			return false
		}
		return slices.Equal(av.X, bv.X) && slices.Equal(av.Y, bv.Y)
	default:
		return false
	}
}

func lenOf(d classapi.Data) int {
	if d == nil {
		return 0
	}
	return d.Len()
}
