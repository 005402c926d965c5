// Package export renders a session snapshot for use outside tally.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/five82/tally/internal/classapi"
)

// Format names an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the supported encodings.
var Formats = []Format{FormatCSV, FormatJSON, FormatYAML}

// ParseFormat accepts a format name case-insensitively ("yml" is YAML).
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, json, or yaml)", name)
	}
}

// Document is the structured form shared by the JSON and YAML encodings.
type Document struct {
	Code      string   `json:"code" yaml:"code"`
	Mode      string   `json:"mode" yaml:"mode"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Variables []string `json:"variables" yaml:"variables"`
	Groups    []Group  `json:"groups,omitempty" yaml:"groups,omitempty"`
	Points    []Pair   `json:"points,omitempty" yaml:"points,omitempty"`
}

// Group is one group's observations in grouped mode.
type Group struct {
	Index  int       `json:"index" yaml:"index"`
	Name   string    `json:"name,omitempty" yaml:"name,omitempty"`
	Values []float64 `json:"values" yaml:"values,flow"`
}

// Pair is one paired observation.
type Pair struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NewDocument converts a snapshot into its export form.
func NewDocument(code string, snap classapi.Snapshot) Document {
	doc := Document{
		Code:      code,
		Mode:      snap.Mode().String(),
		Enabled:   snap.Enabled,
		Variables: append([]string{}, snap.Variables...),
	}
	switch data := snap.Data.(type) {
	case classapi.Grouped:
		for i, values := range data.Values {
			g := Group{Index: i + 1, Values: append([]float64{}, values...)}
			if i < len(snap.Groups) {
				g.Name = snap.Groups[i]
			}
			doc.Groups = append(doc.Groups, g)
		}
	case classapi.Paired:
		for i := 0; i < data.Len(); i++ {
			doc.Points = append(doc.Points, Pair{X: data.X[i], Y: data.Y[i]})
		}
	}
	return doc
}

// Write encodes snap to w in the given format.
func Write(w io.Writer, format Format, code string, snap classapi.Snapshot) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, snap)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(NewDocument(code, snap)); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(NewDocument(code, snap)); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// writeCSV emits one row per observation. Grouped sessions get a group
// column followed by the variable; paired sessions get both variables.
func writeCSV(w io.Writer, snap classapi.Snapshot) error {
	cw := csv.NewWriter(w)
	switch data := snap.Data.(type) {
	case classapi.Paired:
		_ = cw.Write(headerOr(snap.Variables, "x", "y"))
		for i := 0; i < data.Len(); i++ {
			_ = cw.Write([]string{classapi.FormatValue(data.X[i]), classapi.FormatValue(data.Y[i])})
		}
	case classapi.Grouped:
		_ = cw.Write(append([]string{"group"}, headerOr(snap.Variables, "value")...))
		for i, values := range data.Values {
			name := fmt.Sprintf("%d", i+1)
			if i < len(snap.Groups) {
				name = snap.Groups[i]
			}
			for _, v := range values {
				_ = cw.Write([]string{name, classapi.FormatValue(v)})
			}
		}
	default:
		return fmt.Errorf("snapshot has no data")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func headerOr(names []string, fallback ...string) []string {
	if len(names) == len(fallback) {
		return append([]string{}, names...)
	}
	return fallback
}
