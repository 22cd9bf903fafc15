// Package tui is a terminal client for one game, built on bubbletea.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/service"
)

const actionTimeout = 5 * time.Second

type snapshotMsg engine.Snapshot

type actionDoneMsg struct{ err error }

// Model renders a game and turns key presses into game operations
type Model struct {
	game     service.Game
	renderer *Renderer
	snap     engine.Snapshot
	err      error
	styles   Styles
}

// NewModel creates the model. renderer must be one of the game's renderers.
func NewModel(game service.Game, renderer *Renderer) Model {
	return Model{
		game:     game,
		renderer: renderer,
		snap:     game.Snapshot(),
		styles:   DefaultStyles(),
	}
}

// Init starts listening for renders
func (m Model) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-m.renderer.updates)
	}
}

// act runs op off the bubbletea loop, since the game renders back through it
func (m Model) act(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{err: op(ctx)}
	}
}

func (m Model) move(dir engine.Direction) tea.Cmd {
	return m.act(func(ctx context.Context) error {
		_, _, err := m.game.Move(ctx, dir)
		return err
	})
}

var moveKeys = map[string]engine.Direction{
	"up": engine.Up, "k": engine.Up, "w": engine.Up,
	"right": engine.Right, "l": engine.Right, "d": engine.Right,
	"down": engine.Down, "j": engine.Down, "s": engine.Down,
	"left": engine.Left, "h": engine.Left, "a": engine.Left,
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = engine.Snapshot(msg)
		return m, m.waitForSnapshot()

	case actionDoneMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		if dir, ok := moveKeys[key]; ok {
			return m, m.move(dir)
		}
		switch key {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.act(func(ctx context.Context) error {
				_, err := m.game.Restart(ctx)
				return err
			})
		case "c":
			return m, m.act(func(ctx context.Context) error {
				_, err := m.game.KeepPlaying(ctx)
				return err
			})
		case "p":
			enable := !m.snap.Status.PlayerAI
			return m, m.act(func(ctx context.Context) error {
				_, err := m.game.SetPlayerAI(ctx, enable)
				return err
			})
		case "o":
			enable := !m.snap.Status.OpponentAI
			return m, m.act(func(ctx context.Context) error {
				_, err := m.game.SetOpponentAI(ctx, enable)
				return err
			})
		}
	}
	return m, nil
}

// View renders the board, the status line and the key help
func (m Model) View() string {
	var b strings.Builder
	status := m.snap.Status

	b.WriteString(m.styles.Title.Render("2048 duel"))
	b.WriteString("  ")
	b.WriteString(m.styles.Score.Render(fmt.Sprintf("score %d", status.Score)))
	b.WriteString("  ")
	b.WriteString(m.styles.Score.Render(fmt.Sprintf("best %d", status.BestScore)))
	b.WriteString("\n\n")

	rows := make([]string, 0, len(m.snap.Grid.Values))
	for _, row := range m.snap.Grid.Values {
		cells := make([]string, 0, len(row))
		for _, v := range row {
			cells = append(cells, m.styles.Tile(v).Render(tileLabel(v)))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	b.WriteString(m.styles.Board.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(m.styles.Error.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Help.Render("←↑→↓/hjkl/wasd move • r restart • c keep playing • p player AI • o opponent AI • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLine() string {
	status := m.snap.Status
	parts := []string{
		fmt.Sprintf("game %d", status.GameID),
		"player AI " + onOff(status.PlayerAI),
		"opponent AI " + onOff(status.OpponentAI),
	}
	switch {
	case status.Over:
		parts = append(parts, m.styles.Banner.Render("game over!"))
	case status.Won && !status.KeepPlaying:
		parts = append(parts, m.styles.Banner.Render("you win! press c to keep going"))
	case status.Waiting:
		parts = append(parts, "waiting for opponent…")
	}
	return strings.Join(parts, " • ")
}

func tileLabel(v int) string {
	if v == 0 {
		return "·"
	}
	return strconv.Itoa(v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
