package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

type helpGroup struct {
	title    string
	bindings []key.Binding
}

func (m Model) helpGroups() []helpGroup {
	groups := []helpGroup{
		{"General", []key.Binding{keys.Tab, keys.Logs, keys.Escape, keys.CycleTheme, keys.Help, keys.Quit}},
		{"Session", []key.Binding{keys.Add, keys.Command, keys.PrevGroup, keys.NextGroup, keys.Refresh}},
		{"Logs", []key.Binding{keys.Up, keys.Down, keys.PageUp, keys.PageDown, keys.Follow, keys.CycleLevel}},
	}
	if m.session != nil && m.session.IsAdmin() {
		groups = append(groups, helpGroup{"Admin", []key.Binding{keys.ToggleOpen, keys.Renew, keys.Extend}})
	}
	return groups
}

// renderHelp draws the help overlay: key bindings on the left, typed
// commands on the right.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	title := styles.AccentText.Bold(true)
	keyCol := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning)).Width(10)

	var left []string
	for _, g := range m.helpGroups() {
		left = append(left, title.Render(g.title))
		for _, b := range g.bindings {
			h := b.Help()
			left = append(left, keyCol.Render(h.Key)+styles.Text.Render(h.Desc))
		}
		left = append(left, "")
	}

	right := []string{title.Render("Commands")}
	for _, usage := range commandUsage {
		right = append(right, styles.MutedText.Render(":"+usage))
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		strings.Join(left, "\n"),
		"    ",
		strings.Join(right, "\n"),
	)
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.Text.Bold(true).Render("Keyboard Shortcuts"),
		"",
		strings.TrimRight(body, "\n "),
	)

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Focus)).
		Padding(1, 2)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		modal.Render(content),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}
