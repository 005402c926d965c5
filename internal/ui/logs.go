package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tally/internal/logtail"
)

// logFetchLimit bounds how many trailing lines are read per refresh.
const logFetchLimit = 500

// logLevels is the cycle order for the minimum displayed level.
var logLevels = []string{"INFO", "WARN", "ERROR", "DEBUG"}

type logsMsg struct {
	lines []string
	err   error
}

// refreshLogs reads the tail of the log file off the update loop.
func (m Model) refreshLogs() tea.Cmd {
	if m.logPath == "" {
		return nil
	}
	path, level := m.logPath, m.logLevel
	return func() tea.Msg {
		lines, err := logtail.Tail(path, logFetchLimit, level)
		return logsMsg{lines: lines, err: err}
	}
}

func (m *Model) handleLogs(msg logsMsg) {
	if msg.err != nil {
		m.setNotice("", fmt.Errorf("read log: %w", msg.err))
		return
	}
	m.logLines = msg.lines
	m.updateLogViewport()
}

func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	m.logViewport.SetContent(m.renderLogContent())
	if m.logFollow {
		m.logViewport.GotoBottom()
	}
}

func (m Model) renderLogContent() string {
	if len(m.logLines) == 0 {
		return m.theme.Styles().FaintText.Render("No log entries at " + m.logLevel + " or above")
	}
	styles := m.theme.Styles()
	var b strings.Builder
	for i, line := range m.logLines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.styleLogLine(styles, truncate(line, m.logViewport.Width)))
	}
	return b.String()
}

func (m Model) styleLogLine(styles Styles, line string) string {
	// Formatted lines carry the level right after the "15:04:05 " prefix.
	level := ""
	if len(line) > 9 {
		level = strings.TrimSpace(line[9:min(len(line), 14)])
	}
	switch level {
	case "ERROR":
		return styles.DangerText.Render(line)
	case "WARN":
		return styles.WarningText.Render(line)
	case "DEBUG":
		return styles.FaintText.Render(line)
	default:
		return styles.Text.Render(line)
	}
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Follow):
		m.logFollow = !m.logFollow
		if m.logFollow {
			m.logViewport.GotoBottom()
		}
		return m, nil
	case key.Matches(msg, keys.CycleLevel):
		m.logLevel = nextLogLevel(m.logLevel)
		return m, m.refreshLogs()
	case key.Matches(msg, keys.Up):
		m.logFollow = false
		m.logViewport.ScrollUp(1)
	case key.Matches(msg, keys.Down):
		m.logViewport.ScrollDown(1)
	case key.Matches(msg, keys.PageUp):
		m.logFollow = false
		m.logViewport.HalfPageUp()
	case key.Matches(msg, keys.PageDown):
		m.logViewport.HalfPageDown()
	}
	return m, nil
}

func nextLogLevel(current string) string {
	for i, l := range logLevels {
		if l == current {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return logLevels[0]
}

func (m Model) logViewportHeight() int {
	// header, box borders, status line, footer
	return max(1, m.height-5)
}

func (m *Model) resizeLogViewport() {
	m.logViewport.Width = max(1, m.width-4)
	m.logViewport.Height = m.logViewportHeight()
	m.updateLogViewport()
}

// renderLogs renders the log view.
func (m Model) renderLogs() string {
	styles := m.theme.Styles()

	follow := "off"
	if m.logFollow {
		follow = "on"
	}
	title := fmt.Sprintf("Log  %s", m.logPath)
	box := styles.Box.
		BorderForeground(lipgloss.Color(m.theme.Focus)).
		Width(max(1, m.width-2)).
		Render(styles.AccentText.Render(truncate(title, m.width-4)) + "\n" + m.logViewport.View())

	status := styles.FaintText.Render(fmt.Sprintf("%d lines  level %s+  follow %s", len(m.logLines), m.logLevel, follow))
	return box + "\n" + status
}
