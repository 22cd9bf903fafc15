package engine

import (
	"fmt"
	"math/rand/v2"
)

// GameEngine owns the authoritative state of one game
type GameEngine struct {
	rules       Rules
	rng         *rand.Rand
	grid        *Grid
	score       int
	over        bool
	won         bool
	keepPlaying bool
}

// NewEngine starts a fresh game with the rules' start tiles placed at random
func NewEngine(rules Rules, rng *rand.Rand) *GameEngine {
	e := &GameEngine{rules: rules, rng: rng}
	e.Reset()
	return e
}

// NewEngineFromSaved restores a game from its serialized form
func NewEngineFromSaved(rules Rules, saved *SavedGame, rng *rand.Rand) (*GameEngine, error) {
	if saved == nil {
		return nil, fmt.Errorf("%w: nil saved game", ErrInvalidGrid)
	}
	if saved.Grid.Size != rules.Size {
		return nil, fmt.Errorf("%w: saved size %d does not match rules size %d", ErrInvalidGrid, saved.Grid.Size, rules.Size)
	}
	grid, err := NewGridFromSerialized(saved.Grid)
	if err != nil {
		return nil, err
	}
	return &GameEngine{
		rules: rules,
		rng:   rng,
		grid:  grid,
		score: saved.Score,
		over:  saved.Over,
		won:   saved.Won,
	}, nil
}

// Reset replaces the grid with a fresh one and zeroes the counters
func (e *GameEngine) Reset() {
	e.grid = NewGrid(e.rules.Size)
	e.score = 0
	e.over = false
	e.won = false
	e.keepPlaying = false
	for i := 0; i < e.rules.StartTiles; i++ {
		if _, err := e.AddRandomTile(); err != nil {
			break
		}
	}
}

// Rules returns the rules the engine was created with
func (e *GameEngine) Rules() Rules {
	return e.rules
}

// Grid exposes the live grid
func (e *GameEngine) Grid() *Grid {
	return e.grid
}

// Score returns the current score
func (e *GameEngine) Score() int {
	return e.score
}

// IsOver returns whether the game is lost
func (e *GameEngine) IsOver() bool {
	return e.over
}

// IsWon returns whether the win value was reached in this game
func (e *GameEngine) IsWon() bool {
	return e.won
}

// KeepPlaying reports whether the player chose to continue past a win
func (e *GameEngine) KeepPlaying() bool {
	return e.keepPlaying
}

// ContinueAfterWin sets the keep-playing override. It does not touch won.
func (e *GameEngine) ContinueAfterWin() {
	e.keepPlaying = true
}

// IsGameTerminated reports whether moves are refused. Winning does not
// terminate the game; only losing does.
func (e *GameEngine) IsGameTerminated() bool {
	return e.over
}

// NewTileValue draws a spawn value: 2, or 4 with the rules' probability
func (e *GameEngine) NewTileValue() int {
	if e.rng.Float64() < e.rules.FourProbability {
		return 4
	}
	return 2
}

// AddRandomTile places a spawn tile on a random empty cell. It returns
// false when the grid is full.
func (e *GameEngine) AddRandomTile() (*Tile, error) {
	pos, ok := e.grid.RandomAvailableCell(e.rng)
	if !ok {
		return nil, ErrNoAvailableCell
	}
	tile := e.grid.NewTile(pos, e.NewTileValue())
	e.grid.place(tile)
	return tile, nil
}

// AddTileAt places a spawn tile at pos. The cell must be empty.
func (e *GameEngine) AddTileAt(pos Position) (*Tile, error) {
	if !e.grid.CellAvailable(pos) {
		if !e.grid.WithinBounds(pos) {
			return nil, fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, pos.X, pos.Y)
		}
		return nil, fmt.Errorf("%w: (%d,%d)", ErrCellOccupied, pos.X, pos.Y)
	}
	tile := e.grid.NewTile(pos, e.NewTileValue())
	if err := e.grid.InsertTile(tile); err != nil {
		return nil, err
	}
	return tile, nil
}

// CheckGameOver marks the game over when no move is left. It returns the
// resulting over flag.
func (e *GameEngine) CheckGameOver() bool {
	if !e.MovesAvailable() {
		e.over = true
	}
	return e.over
}

// Serialize returns the persisted form of the game
func (e *GameEngine) Serialize() *SavedGame {
	return &SavedGame{
		Grid:  e.grid.Serialize(),
		Score: e.score,
		Over:  e.over,
		Won:   e.won,
	}
}
