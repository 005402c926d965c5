package ui

import (
	"slices"

	"github.com/charmbracelet/lipgloss"
)

// Theme is a named palette of hex colors.
type Theme struct {
	Name string

	Background    string // behind chips and overlays
	Surface       string // footer bar
	Selection     string // selected group row
	SelectionText string
	Border        string
	Focus         string // border of the focused panel

	Text    string
	Muted   string
	Faint   string
	Accent  string
	Success string
	Warning string
	Danger  string
	Info    string
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	FaintText   lipgloss.Style
	AccentText  lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style
	InfoText    lipgloss.Style

	Footer   lipgloss.Style
	Logo     lipgloss.Style
	Selected lipgloss.Style
	Box      lipgloss.Style

	chip lipgloss.Style
}

// Styles builds the styles for t.
func (t Theme) Styles() Styles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }

	return Styles{
		Text:        fg(t.Text),
		MutedText:   fg(t.Muted),
		FaintText:   fg(t.Faint),
		AccentText:  fg(t.Accent),
		SuccessText: fg(t.Success).Bold(true),
		WarningText: fg(t.Warning),
		DangerText:  fg(t.Danger).Bold(true),
		InfoText:    fg(t.Info),

		Footer:   fg(t.Muted).Background(lipgloss.Color(t.Surface)).Padding(0, 1),
		Logo:     fg(t.Warning).Bold(true),
		Selected: fg(t.SelectionText).Background(lipgloss.Color(t.Selection)),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)).
			Padding(0, 1),

		chip: fg(t.Background).Padding(0, 1),
	}
}

// Chip renders label as a badge on color.
func (s Styles) Chip(label, color string) string {
	return s.chip.Background(lipgloss.Color(color)).Render(label)
}

// themeList is the cycle order; the first entry is the default.
var themeList = []Theme{
	{
		// https://github.com/EdenEast/nightfox.nvim
		Name:          "Nightfox",
		Background:    "#131a24",
		Surface:       "#192330",
		Selection:     "#2b3b51",
		SelectionText: "#cdcecf",
		Border:        "#39506d",
		Focus:         "#719cd6",
		Text:          "#cdcecf",
		Muted:         "#738091",
		Faint:         "#71839b",
		Accent:        "#719cd6",
		Success:       "#81b29a",
		Warning:       "#dbc074",
		Danger:        "#c94f6d",
		Info:          "#63cdcf",
	},
	{
		// https://github.com/rebelot/kanagawa.nvim
		Name:          "Kanagawa",
		Background:    "#16161d",
		Surface:       "#1f1f28",
		Selection:     "#2d4f67",
		SelectionText: "#dcd7ba",
		Border:        "#54546d",
		Focus:         "#7e9cd8",
		Text:          "#dcd7ba",
		Muted:         "#c8c093",
		Faint:         "#727169",
		Accent:        "#7e9cd8",
		Success:       "#98bb6c",
		Warning:       "#e6c384",
		Danger:        "#e46876",
		Info:          "#7fb4ca",
	},
	{
		// Tailwind slate with sky accents.
		Name:          "Slate",
		Background:    "#020617",
		Surface:       "#0f172a",
		Selection:     "#0284c7",
		SelectionText: "#f8fafc",
		Border:        "#334155",
		Focus:         "#38bdf8",
		Text:          "#f1f5f9",
		Muted:         "#94a3b8",
		Faint:         "#64748b",
		Accent:        "#38bdf8",
		Success:       "#22c55e",
		Warning:       "#f59e0b",
		Danger:        "#ef4444",
		Info:          "#06b6d4",
	},
}

func themeIndex(name string) int {
	return slices.IndexFunc(themeList, func(t Theme) bool { return t.Name == name })
}

// GetTheme returns the named theme, or the default for an unknown name.
func GetTheme(name string) Theme {
	if i := themeIndex(name); i >= 0 {
		return themeList[i]
	}
	return themeList[0]
}

// NextTheme returns the theme after current in the cycle.
func NextTheme(current string) string {
	i := themeIndex(current)
	return themeList[(i+1)%len(themeList)].Name
}

// ThemeNames lists the available themes in cycle order.
func ThemeNames() []string {
	names := make([]string, len(themeList))
	for i, t := range themeList {
		names[i] = t.Name
	}
	return names
}
