package logtail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// tailBlock is how much of the file Read pulls per step when walking
// backwards from the end.
const tailBlock = 32 * 1024

// Read returns at most maxLines from the end of the file at path. A
// maxLines of zero or less returns every line. A missing file yields no
// lines and no error.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = file.Close() }()

	if maxLines <= 0 {
		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return splitLines(raw), nil
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	// Walk back until the buffer holds one newline more than needed, which
	// guarantees the last maxLines lines are complete.
	var buf []byte
	newlines := 0
	for off := info.Size(); off > 0 && newlines <= maxLines; {
		n := min(off, tailBlock)
		off -= n
		block := make([]byte, n)
		if _, err := file.ReadAt(block, off); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log: %w", err)
		}
		newlines += bytes.Count(block, []byte{'\n'})
		buf = append(block, buf...)
	}

	lines := splitLines(buf)
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

// splitLines splits raw on newlines, dropping the terminator of the final
// line and any carriage returns.
func splitLines(raw []byte) []string {
	text := strings.TrimSuffix(string(raw), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Entry is one structured log record.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	Session   string
	// Attrs holds the remaining fields as key=value pairs, sorted by key.
	Attrs []string
	// Raw is the original line, kept for lines that are not JSON.
	Raw string
}

// Parse decodes a JSON log line. Lines that are not JSON objects come back
// with only Raw set.
func Parse(line string) Entry {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Entry{Raw: line}
	}
	e := Entry{Raw: line}
	if ts, ok := fields["time"].(string); ok {
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	e.Level, _ = fields["level"].(string)
	e.Message, _ = fields["msg"].(string)
	e.Component, _ = fields["component"].(string)
	e.Session, _ = fields["session"].(string)
	for _, k := range []string{"time", "level", "msg", "component", "session"} {
		delete(fields, k)
	}
	for k, v := range fields {
		e.Attrs = append(e.Attrs, fmt.Sprintf("%s=%v", k, v))
	}
	slices.Sort(e.Attrs)
	return e
}

// Structured reports whether the entry came from a JSON record.
func (e Entry) Structured() bool {
	return e.Level != "" || e.Message != ""
}

// Format renders the entry on one line for the log view.
func (e Entry) Format() string {
	if !e.Structured() {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", e.Level)
	if scope := strings.TrimSpace(e.Component + " " + e.Session); scope != "" {
		fmt.Fprintf(&b, " [%s]", scope)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, a := range e.Attrs {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// AtLeast reports whether the entry's level is at or above minLevel.
// Unstructured lines always pass.
func (e Entry) AtLeast(minLevel string) bool {
	if !e.Structured() {
		return true
	}
	want, ok := levelRank[strings.ToUpper(minLevel)]
	if !ok {
		return true
	}
	return levelRank[strings.ToUpper(e.Level)] >= want
}

// Tail reads up to maxLines from path and returns the formatted entries at
// or above minLevel.
func Tail(path string, maxLines int, minLevel string) ([]string, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if e := Parse(line); e.AtLeast(minLevel) {
			out = append(out, e.Format())
		}
	}
	return out, nil
}
