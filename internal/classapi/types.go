package classapi

import (
	"slices"
	"strings"
	"time"
)

// Mode identifies how a session's observations are laid out.
type Mode int

const (
	// ModeGrouped: one variable, values partitioned by group index.
	ModeGrouped Mode = iota + 1
	// ModePaired: two variables, row-aligned x/y coordinates.
	ModePaired
)

func (m Mode) String() string {
	switch m {
	case ModeGrouped:
		return "grouped"
	case ModePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// ModeFor returns the layout implied by the number of variables.
func ModeFor(variables int) Mode {
	if variables == 2 {
		return ModePaired
	}
	return ModeGrouped
}

// Data is the raw observation set of a session. The only implementations
// are Grouped and Paired.
type Data interface {
	Mode() Mode
	// Len returns the total number of observations.
	Len() int
	clone() Data
}

// Grouped holds one value slice per group, indexed from zero (group 1 is
// Values[0]).
type Grouped struct {
	Values [][]float64
}

func (Grouped) Mode() Mode { return ModeGrouped }

func (g Grouped) Len() int {
	n := 0
	for _, vs := range g.Values {
		n += len(vs)
	}
	return n
}

func (g Grouped) clone() Data {
	out := Grouped{Values: make([][]float64, len(g.Values))}
	for i, vs := range g.Values {
		out.Values[i] = slices.Clone(vs)
	}
	return out
}

// Group returns the values recorded for the 1-based group index.
func (g Grouped) Group(index int) []float64 {
	if index < 1 || index > len(g.Values) {
		return nil
	}
	return g.Values[index-1]
}

// Paired holds row-aligned coordinates; X[i] and Y[i] are one observation.
type Paired struct {
	X []float64
	Y []float64
}

func (Paired) Mode() Mode { return ModePaired }

func (p Paired) Len() int { return min(len(p.X), len(p.Y)) }

func (p Paired) clone() Data {
	return Paired{X: slices.Clone(p.X), Y: slices.Clone(p.Y)}
}

// Point is a single paired observation.
type Point struct {
	X float64
	Y float64
}

// Snapshot is the full state of a session as returned by the store.
type Snapshot struct {
	Enabled   bool
	Variables []string
	Groups    []string
	Data      Data
}

// Mode reports the snapshot's layout.
func (s Snapshot) Mode() Mode {
	if s.Data != nil {
		return s.Data.Mode()
	}
	return ModeFor(len(s.Variables))
}

// GroupCount returns how many group slots exist in grouped mode. Sessions
// without named groups still have one implicit group.
func (s Snapshot) GroupCount() int {
	return max(1, len(s.Groups))
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Enabled:   s.Enabled,
		Variables: slices.Clone(s.Variables),
		Groups:    slices.Clone(s.Groups),
	}
	if s.Data != nil {
		out.Data = s.Data.clone()
	}
	return out
}

// SessionInfo mirrors the lookup endpoint payload.
type SessionInfo struct {
	Code       string    `json:"code"`
	Variables  []string  `json:"variables"`
	Groups     []string  `json:"groups"`
	Enabled    bool      `json:"enabled"`
	Expires    time.Time `json:"expires"`
	AdminValid bool      `json:"admin_valid"`
}

// Mode reports the session's layout.
func (i SessionInfo) Mode() Mode { return ModeFor(len(i.Variables)) }

// Credentials are returned when a session is created.
type Credentials struct {
	Code    string    `json:"code"`
	Admin   string    `json:"admin"`
	Expires time.Time `json:"expires"`
}

// NewSession describes a session to create.
type NewSession struct {
	Variables []string
	Groups    []string
}

// NormalizeCode canonicalizes a human-typed session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
