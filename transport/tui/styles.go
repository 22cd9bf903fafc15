package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the client
type Styles struct {
	Title  lipgloss.Style
	Score  lipgloss.Style
	Board  lipgloss.Style
	Banner lipgloss.Style
	Error  lipgloss.Style
	Help   lipgloss.Style

	cell  lipgloss.Style
	tiles map[int]lipgloss.Style
}

// Background and foreground per tile value, from the classic palette
var tileColors = []struct {
	value  int
	bg, fg string
}{
	{0, "#cdc1b4", "#776e65"},
	{2, "#eee4da", "#776e65"},
	{4, "#ede0c8", "#776e65"},
	{8, "#f2b179", "#f9f6f2"},
	{16, "#f59563", "#f9f6f2"},
	{32, "#f67c5f", "#f9f6f2"},
	{64, "#f65e3b", "#f9f6f2"},
	{128, "#edcf72", "#f9f6f2"},
	{256, "#edcc61", "#f9f6f2"},
	{512, "#edc850", "#f9f6f2"},
	{1024, "#edc53f", "#f9f6f2"},
	{2048, "#edc22e", "#f9f6f2"},
}

func DefaultStyles() Styles {
	s := Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#edc22e")),
		Score:  lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("#bbada0")).Foreground(lipgloss.Color("#ffffff")),
		Board:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#bbada0")),
		Banner: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f65e3b")),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")),
		Help:   lipgloss.NewStyle().Foreground(lipgloss.Color("#8a8a8a")),
		cell:   lipgloss.NewStyle().Width(7).Height(3).Align(lipgloss.Center, lipgloss.Center).Bold(true),
		tiles:  make(map[int]lipgloss.Style, len(tileColors)),
	}
	for _, c := range tileColors {
		s.tiles[c.value] = s.cell.
			Background(lipgloss.Color(c.bg)).
			Foreground(lipgloss.Color(c.fg))
	}
	return s
}

// Tile returns the style of a cell holding v. Values past 2048 share one style.
func (s Styles) Tile(v int) lipgloss.Style {
	if style, ok := s.tiles[v]; ok {
		return style
	}
	return s.cell.Background(lipgloss.Color("#3c3a32")).Foreground(lipgloss.Color("#f9f6f2"))
}
