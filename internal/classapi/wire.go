package classapi

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ParseSnapshot decodes the line-oriented snapshot payload. An empty body
// means the store does not know the session and yields ErrSessionNotFound.
//
// Line 1 is "enabled,nVars,var...,group..." with percent-encoded names.
// Each following line is one observation: "group,value" when there is one
// variable, "x,y" when there are two.
func ParseSnapshot(body []byte) (Snapshot, error) {
	text := strings.TrimSpace(strings.ReplaceAll(string(body), "\r\n", "\n"))
	if text == "" {
		return Snapshot{}, ErrSessionNotFound
	}
	lines := strings.Split(text, "\n")

	snap, err := parseHeader(lines[0])
	if err != nil {
		return Snapshot{}, err
	}

	switch snap.Mode() {
	case ModePaired:
		var data Paired
		for i, line := range lines[1:] {
			if strings.TrimSpace(line) == "" {
				continue
			}
			x, y, err := parsePair(line)
			if err != nil {
				return Snapshot{}, fmt.Errorf("snapshot line %d: %w", i+2, err)
			}
			data.X = append(data.X, x)
			data.Y = append(data.Y, y)
		}
		snap.Data = data
	default:
		data := Grouped{Values: make([][]float64, snap.GroupCount())}
		for i, line := range lines[1:] {
			if strings.TrimSpace(line) == "" {
				continue
			}
			group, value, err := parseGroupValue(line)
			if err != nil {
				return Snapshot{}, fmt.Errorf("snapshot line %d: %w", i+2, err)
			}
			if group < 1 || group > len(data.Values) {
				return Snapshot{}, fmt.Errorf("snapshot line %d: group %d out of range 1..%d", i+2, group, len(data.Values))
			}
			data.Values[group-1] = append(data.Values[group-1], value)
		}
		snap.Data = data
	}
	return snap, nil
}

func parseHeader(line string) (Snapshot, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 2 {
		return Snapshot{}, fmt.Errorf("snapshot header %q: too few fields", line)
	}

	var snap Snapshot
	switch fields[0] {
	case "1", "true":
		snap.Enabled = true
	case "0", "false":
	default:
		return Snapshot{}, fmt.Errorf("snapshot header: bad enabled flag %q", fields[0])
	}

	nVars, err := strconv.Atoi(fields[1])
	if err != nil || nVars < 1 || nVars > 2 {
		return Snapshot{}, fmt.Errorf("snapshot header: bad variable count %q", fields[1])
	}
	names := fields[2:]
	if len(names) < nVars {
		return Snapshot{}, fmt.Errorf("snapshot header: %d variable names, want %d", len(names), nVars)
	}

	decoded := make([]string, len(names))
	for i, raw := range names {
		name, err := url.QueryUnescape(raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot header: decode name %q: %w", raw, err)
		}
		decoded[i] = name
	}
	snap.Variables = decoded[:nVars:nVars]
	if groups := decoded[nVars:]; len(groups) > 0 {
		snap.Groups = groups
	}
	return snap, nil
}

func parseGroupValue(line string) (int, float64, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return 0, 0, fmt.Errorf("malformed point %q", line)
	}
	group, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, 0, fmt.Errorf("bad group index %q", left)
	}
	value, err := ParseValue(right)
	if err != nil {
		return 0, 0, err
	}
	return group, value, nil
}

func parsePair(line string) (float64, float64, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return 0, 0, fmt.Errorf("malformed point %q", line)
	}
	x, err := ParseValue(left)
	if err != nil {
		return 0, 0, err
	}
	y, err := ParseValue(right)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// EncodeSnapshot renders a snapshot in the wire format read by
// ParseSnapshot.
func EncodeSnapshot(s Snapshot) []byte {
	var b bytes.Buffer
	if s.Enabled {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(len(s.Variables)))
	for _, name := range s.Variables {
		b.WriteByte(',')
		b.WriteString(url.QueryEscape(name))
	}
	for _, name := range s.Groups {
		b.WriteByte(',')
		b.WriteString(url.QueryEscape(name))
	}
	b.WriteByte('\n')

	switch data := s.Data.(type) {
	case Grouped:
		for i, vs := range data.Values {
			for _, v := range vs {
				fmt.Fprintf(&b, "%d,%s\n", i+1, FormatValue(v))
			}
		}
	case Paired:
		for i := 0; i < data.Len(); i++ {
			fmt.Fprintf(&b, "%s,%s\n", FormatValue(data.X[i]), FormatValue(data.Y[i]))
		}
	}
	return b.Bytes()
}

// FormatValue renders an observation with the shortest exact encoding.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseValue parses a finite observation.
func ParseValue(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

// JoinValues renders a value list as a comma-separated form field.
func JoinValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatValue(v)
	}
	return strings.Join(parts, ",")
}

// SplitValues parses a comma-separated value list. Blank input yields nil.
func SplitValues(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := ParseValue(p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
