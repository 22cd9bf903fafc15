package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultSize            = 4
	DefaultStartTiles      = 2
	DefaultWinValue        = 2048
	DefaultFourProbability = 0.1

	// Validation constants
	MinGridSize = 2
	MaxGridSize = 8
	MinWinValue = 8
)

var (
	ErrOutOfBounds      = errors.New("position out of bounds")
	ErrCellOccupied     = errors.New("cell already occupied")
	ErrNoAvailableCell  = errors.New("no available cell")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidGrid      = errors.New("invalid serialized grid")
	ErrInvalidRules     = errors.New("invalid rules")
)

// Direction is one of the four move directions. The numeric values are part
// of the agent wire protocol.
type Direction int

const (
	Up Direction = iota
	Right
	Down
	Left
)

// Directions lists all directions in protocol order.
var Directions = [4]Direction{Up, Right, Down, Left}

var directionNames = [4]string{"up", "right", "down", "left"}

// Valid reports whether d is one of the four directions
func (d Direction) Valid() bool {
	return d >= Up && d <= Left
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Vector returns the unit step for the direction
func (d Direction) Vector() Vector {
	switch d {
	case Up:
		return Vector{X: 0, Y: -1}
	case Right:
		return Vector{X: 1, Y: 0}
	case Down:
		return Vector{X: 0, Y: 1}
	case Left:
		return Vector{X: -1, Y: 0}
	}
	return Vector{}
}

// ParseDirection accepts a direction name ("up", "right", "down", "left")
// or its protocol number ("0".."3").
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range directionNames {
		if s == name {
			return Direction(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Direction(n).Valid() {
		return Direction(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Position represents x,y coordinates; x is the column and y the row
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns the position one step along v
func (p Position) Add(v Vector) Position {
	return Position{X: p.X + v.X, Y: p.Y + v.Y}
}

// Vector is a unit step on the grid
type Vector struct {
	X int
	Y int
}

// Rules are the per-game parameters of the engine
type Rules struct {
	Size            int     `json:"grid_size"`
	StartTiles      int     `json:"start_tiles"`
	WinValue        int     `json:"win_value"`
	FourProbability float64 `json:"four_probability"`
}

// DefaultRules returns the classic 4x4 rules
func DefaultRules() Rules {
	return Rules{
		Size:            DefaultSize,
		StartTiles:      DefaultStartTiles,
		WinValue:        DefaultWinValue,
		FourProbability: DefaultFourProbability,
	}
}

// MoveResult reports what a single move did
type MoveResult struct {
	Direction  Direction `json:"direction"`
	Moved      bool      `json:"moved"`
	ScoreDelta int       `json:"score_delta"`
	Merges     []Merge   `json:"merges,omitempty"`
	// Won is true only for the move that first reached the win value
	Won bool `json:"won,omitempty"`
}

// Merge records one merge performed during a move
type Merge struct {
	Tile     TileID    `json:"tile"`
	From     [2]TileID `json:"from"`
	Position Position  `json:"position"`
	Value    int       `json:"value"`
}

// SavedGame is the serialized session format:
// {grid:{size, cells}, score, over, won}
type SavedGame struct {
	Grid  SerializedGrid `json:"grid"`
	Score int            `json:"score"`
	Over  bool           `json:"over"`
	Won   bool           `json:"won"`
}

// SerializedGrid stores cells column-major: Cells[x][y]
type SerializedGrid struct {
	Size  int                 `json:"size"`
	Cells [][]*SerializedTile `json:"cells"`
}

// SerializedTile is the persisted form of a tile
type SerializedTile struct {
	Position Position `json:"position"`
	Value    int      `json:"value"`
}

// Status is the metadata handed to renderers together with the grid
type Status struct {
	Score       int   `json:"score"`
	Over        bool  `json:"over"`
	Won         bool  `json:"won"`
	BestScore   int   `json:"best_score"`
	Terminated  bool  `json:"terminated"`
	KeepPlaying bool  `json:"keep_playing"`
	Waiting     bool  `json:"waiting_for_opponent"`
	GameID      int64 `json:"game_id"`
	PlayerAI    bool  `json:"player_ai"`
	OpponentAI  bool  `json:"opponent_ai"`
}

// Snapshot is one rendered state of a game
type Snapshot struct {
	Grid   GridSnapshot `json:"grid"`
	Status Status       `json:"status"`
}

// GridSnapshot is an immutable copy of the grid for rendering
type GridSnapshot struct {
	Size int `json:"size"`
	// Values is row-major: Values[y][x], 0 for empty
	Values [][]int    `json:"values"`
	Tiles  []TileView `json:"tiles"`
	Merged []TileView `json:"merged,omitempty"`
}

// TileView is the render view of a tile record
type TileView struct {
	ID               TileID     `json:"id"`
	Position         Position   `json:"position"`
	Value            int        `json:"value"`
	PreviousPosition *Position  `json:"previous_position,omitempty"`
	MergedFrom       *[2]TileID `json:"merged_from,omitempty"`
}
