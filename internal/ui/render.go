package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tally/internal/classapi"
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.currentView {
	case ViewLogs:
		b.WriteString(m.renderLogs())
	default:
		b.WriteString(m.renderData())
	}
	b.WriteString("\n")

	b.WriteString(m.renderPrompt())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader renders the status line: session, role, gate and sync health.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	snap := m.snapshot

	parts := []string{styles.Logo.Render("tally")}

	code := snap.Code
	if code == "" && m.session != nil {
		code = m.session.Code()
	}
	if code != "" {
		parts = append(parts, styles.Text.Bold(true).Render(code))
	}

	if m.session != nil && m.session.IsAdmin() {
		parts = append(parts, styles.Chip("ADMIN", m.theme.Accent))
	}
	if m.status.Enabled || snap.Enabled {
		parts = append(parts, styles.Chip("OPEN", m.theme.Success))
	} else {
		parts = append(parts, styles.Chip("CLOSED", m.theme.Muted))
	}

	switch {
	case snap.IsOffline():
		parts = append(parts, styles.Chip("OFFLINE", m.theme.Danger))
	case m.status.Idle:
		parts = append(parts, styles.Chip("IDLE", m.theme.Warning))
	case snap.Slow:
		parts = append(parts, styles.Chip("SLOW", m.theme.Warning))
	}

	if m.status.Interval > 0 && !m.status.Idle {
		parts = append(parts, styles.MutedText.Render("every "+formatDuration(m.status.Interval)))
	}
	if m.status.Pending > 0 {
		parts = append(parts, styles.InfoText.Render(fmt.Sprintf("%d pending", m.status.Pending)))
	}
	if !snap.LastUpdated.IsZero() {
		parts = append(parts, styles.FaintText.Render("updated "+snap.LastUpdated.Local().Format("15:04:05")))
	}

	return lipgloss.NewStyle().MaxWidth(max(1, m.width)).Render(strings.Join(parts, " "))
}

// renderData renders the collected observations for the session.
func (m Model) renderData() string {
	styles := m.theme.Styles()
	snap := m.snapshot

	var lines []string
	switch {
	case !snap.HasData && snap.Loading:
		lines = append(lines, styles.MutedText.Render("Joining session..."))
	case !snap.HasData:
		lines = append(lines, styles.MutedText.Render("Waiting for data..."))
	case snap.Mode == classapi.ModePaired:
		lines = append(lines, m.pairedLines()...)
	default:
		lines = append(lines, m.groupedLines()...)
	}

	if m.status.Idle {
		lines = append(lines, "", styles.WarningText.Render("Updates paused after inactivity. Press r to resume."))
	}
	if left := m.collectionRemaining(); left > 0 {
		lines = append(lines, "", styles.WarningText.Render(
			fmt.Sprintf("Collection closes in %s.", formatDuration(left))))
	}
	if snap.LastError != nil {
		lines = append(lines, "", styles.DangerText.Render(truncate("Sync error: "+snap.LastError.Error(), m.width-4)))
	}

	height := m.contentHeight()
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return styles.Box.
		Width(max(1, m.width-2)).
		Height(height).
		Render(strings.Join(lines, "\n"))
}

func (m Model) groupedLines() []string {
	styles := m.theme.Styles()
	data, _ := m.snapshot.Data.Data.(classapi.Grouped)

	variable := "Value"
	if len(m.snapshot.Variables) > 0 {
		variable = m.snapshot.Variables[0]
	}
	lines := []string{styles.AccentText.Render(variable)}

	nameWidth := 0
	for i := range m.groupCount() {
		nameWidth = max(nameWidth, lipgloss.Width(m.groupName(i)))
	}

	for i := range m.groupCount() {
		values := data.Group(i + 1)
		marker := "  "
		if i == m.selectedGroup {
			marker = "> "
		}
		name := fmt.Sprintf("%-*s", nameWidth, m.groupName(i))
		summary := fmt.Sprintf("n=%-3d", len(values))
		if len(values) > 0 {
			summary += " mean=" + formatValue(mean(values))
		}
		prefix := marker + name + "  " + summary + "  "
		row := prefix + truncate(joinValues(values), m.width-6-lipgloss.Width(prefix))
		if i == m.selectedGroup {
			lines = append(lines, styles.Selected.Render(row))
			continue
		}
		lines = append(lines, styles.Text.Render(row))
	}
	return lines
}

func (m Model) pairedLines() []string {
	styles := m.theme.Styles()
	data, _ := m.snapshot.Data.Data.(classapi.Paired)

	xName, yName := "x", "y"
	if v := m.snapshot.Variables; len(v) >= 2 {
		xName, yName = v[0], v[1]
	}
	const col = 12
	header := fmt.Sprintf("%4s  %-*s %-*s", "#", col, truncate(xName, col), col, truncate(yName, col))
	lines := []string{styles.AccentText.Render(header)}

	n := data.Len()
	if n == 0 {
		return append(lines, styles.FaintText.Render("no points yet"))
	}
	// Most recent rows win when the table does not fit.
	start := max(0, n-(m.contentHeight()-2))
	for i := start; i < n; i++ {
		lines = append(lines, styles.Text.Render(fmt.Sprintf("%4d  %-*s %-*s", i+1,
			col, formatValue(data.X[i]), col, formatValue(data.Y[i]))))
	}
	return lines
}

// renderPrompt renders the input line or the latest notice.
func (m Model) renderPrompt() string {
	styles := m.theme.Styles()
	if m.inputMode != inputNone {
		return m.input.View()
	}
	if m.notice == "" {
		return ""
	}
	if m.noticeErr {
		return styles.DangerText.Render(truncate(m.notice, m.width))
	}
	return styles.SuccessText.Render(truncate(m.notice, m.width))
}

// renderFooter renders the key hints for the current view.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	var hints []string
	switch {
	case m.inputMode != inputNone:
		hints = []string{"enter submit", "esc cancel"}
	case m.currentView == ViewLogs:
		hints = []string{"j/k scroll", "f follow", "v level", "esc back", "? help"}
	default:
		hints = []string{"a add", "[/] group", ": command", "r refresh", "tab logs", "? help", "q quit"}
		if m.session != nil && m.session.IsAdmin() {
			hints = slices.Insert(hints, 4, "o open/close", "x extend")
		}
	}
	return styles.Footer.Width(max(1, m.width)).Render(truncate(strings.Join(hints, "  "), m.width-2))
}

// collectionRemaining counts down to the engine's auto-disable deadline
// once the closing warning has been delivered. A renewed window moves the
// deadline past the warned remainder, which hides the notice again.
func (m Model) collectionRemaining() time.Duration {
	warned := m.snapshot.CollectionRemaining
	deadline := m.status.CollectionDeadline
	if warned <= 0 || deadline.IsZero() || !m.status.Enabled {
		return 0
	}
	left := deadline.Sub(m.now())
	if left <= 0 || left > warned+time.Second {
		return 0
	}
	return left.Round(time.Second)
}

func (m Model) contentHeight() int {
	// header, box borders, prompt, footer
	return max(1, m.height-5)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return fmt.Sprintf("%.0fs", d.Seconds())
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}
