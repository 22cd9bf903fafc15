package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestNewEngine(t *testing.T) {
	e := NewEngine(DefaultRules(), testRNG())

	if got := CountTiles(e.Grid()); got != DefaultStartTiles {
		t.Errorf("Expected %d start tiles, got %d", DefaultStartTiles, got)
	}
	if e.Score() != 0 || e.IsOver() || e.IsWon() || e.KeepPlaying() {
		t.Error("Expected a fresh game state")
	}
	for _, v := range e.Grid().Snapshot().Tiles {
		if v.Value != 2 && v.Value != 4 {
			t.Errorf("Unexpected start tile value %d", v.Value)
		}
	}
}

func TestEngine_Reset(t *testing.T) {
	e := engineFromRows(t, [][]int{
		{1024, 1024, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})
	e.Move(Left)
	e.ContinueAfterWin()

	e.Reset()
	if e.Score() != 0 || e.IsWon() || e.KeepPlaying() || e.IsOver() {
		t.Error("Expected Reset to clear score and flags")
	}
	if got := CountTiles(e.Grid()); got != DefaultStartTiles {
		t.Errorf("Expected %d tiles after reset, got %d", DefaultStartTiles, got)
	}
}

func TestEngine_NewTileValueDistribution(t *testing.T) {
	e := NewEngine(DefaultRules(), testRNG())
	fours := 0
	const draws = 10000
	for i := 0; i < draws; i++ {
		switch e.NewTileValue() {
		case 4:
			fours++
		case 2:
		default:
			t.Fatal("Unexpected spawn value")
		}
	}
	if fours < 800 || fours > 1200 {
		t.Errorf("Expected about 10%% fours, got %d of %d", fours, draws)
	}
}

func TestEngine_AddTileAt(t *testing.T) {
	e := engineFromRows(t, [][]int{
		{2, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})

	if _, err := e.AddTileAt(Position{X: 0, Y: 0}); !errors.Is(err, ErrCellOccupied) {
		t.Errorf("Expected ErrCellOccupied, got %v", err)
	}
	if _, err := e.AddTileAt(Position{X: 4, Y: 4}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got %v", err)
	}

	tile, err := e.AddTileAt(Position{X: 3, Y: 3})
	if err != nil {
		t.Fatalf("AddTileAt failed: %v", err)
	}
	if e.Grid().CellContent(Position{X: 3, Y: 3}) != tile {
		t.Error("Expected tile at (3,3)")
	}
}

func TestEngine_AddRandomTileFullGrid(t *testing.T) {
	e := engineFromRows(t, [][]int{
		{2, 4},
		{4, 2},
	})
	tile, err := e.AddRandomTile()
	if !errors.Is(err, ErrNoAvailableCell) {
		t.Errorf("Expected ErrNoAvailableCell on a full grid, got %v", err)
	}
	if tile != nil || CountTiles(e.Grid()) != 4 {
		t.Error("Expected the full grid to stay unchanged")
	}
}

func TestEngine_AddRandomTile(t *testing.T) {
	e := engineFromRows(t, [][]int{
		{2, 4},
		{4, 0},
	})
	tile, err := e.AddRandomTile()
	if err != nil {
		t.Fatalf("AddRandomTile failed: %v", err)
	}
	if tile.Position != (Position{X: 1, Y: 1}) {
		t.Errorf("Expected the only empty cell (1,1), got %v", tile.Position)
	}
	if e.Grid().CellContent(tile.Position) != tile {
		t.Error("Expected the tile to be placed on the grid")
	}
}

func TestEngine_ContinueAfterWin(t *testing.T) {
	e := engineFromRows(t, [][]int{
		{1024, 1024, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})
	e.Move(Left)
	e.ContinueAfterWin()
	if !e.IsWon() || !e.KeepPlaying() {
		t.Error("Expected won and keep-playing to both be set")
	}
}

func TestNewEngineFromSaved_SizeMismatch(t *testing.T) {
	saved := savedFromRows([][]int{{2, 0}, {0, 0}})
	if _, err := NewEngineFromSaved(DefaultRules(), saved, testRNG()); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("Expected ErrInvalidGrid, got %v", err)
	}
	if _, err := NewEngineFromSaved(DefaultRules(), nil, testRNG()); err == nil {
		t.Error("Expected error for nil saved game")
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input string
		want  Direction
		ok    bool
	}{
		{"up", Up, true},
		{"RIGHT", Right, true},
		{" down ", Down, true},
		{"left", Left, true},
		{"0", Up, true},
		{"3", Left, true},
		{"4", 0, false},
		{"north", 0, false},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := ParseDirection(test.input)
			if test.ok && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !test.ok {
				if !errors.Is(err, ErrInvalidDirection) {
					t.Errorf("Expected ErrInvalidDirection, got %v", err)
				}
				return
			}
			if got != test.want {
				t.Errorf("Expected %s, got %s", test.want, got)
			}
		})
	}
}

func TestDirectionVectors(t *testing.T) {
	tests := []struct {
		dir  Direction
		want Vector
	}{
		{Up, Vector{0, -1}},
		{Right, Vector{1, 0}},
		{Down, Vector{0, 1}},
		{Left, Vector{-1, 0}},
	}
	for _, test := range tests {
		if got := test.dir.Vector(); got != test.want {
			t.Errorf("%s: expected %+v, got %+v", test.dir, test.want, got)
		}
	}
}

func TestValidateVariant(t *testing.T) {
	valid := ClassicVariant()
	if err := ValidateVariant(valid); err != nil {
		t.Fatalf("Classic variant should be valid: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(v *Variant)
		errText string
	}{
		{"missing name", func(v *Variant) { v.Name = "" }, "name is required"},
		{"missing description", func(v *Variant) { v.Description = "" }, "description is required"},
		{"grid too small", func(v *Variant) { v.Size = 1 }, "grid_size"},
		{"grid too large", func(v *Variant) { v.Size = 9 }, "grid_size"},
		{"no start tiles", func(v *Variant) { v.StartTiles = 0 }, "start_tiles"},
		{"win not power of two", func(v *Variant) { v.WinValue = 1000 }, "win_value"},
		{"probability above one", func(v *Variant) { v.FourProbability = 1.5 }, "four_probability"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v := ClassicVariant()
			test.mutate(v)
			err := ValidateVariant(v)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), test.errText) {
				t.Errorf("Expected error containing %q, got %v", test.errText, err)
			}
		})
	}
}

func TestParseVariant(t *testing.T) {
	data := []byte(`{"name":"Big","description":"5x5 to 4096","grid_size":5,"start_tiles":3,"win_value":4096,"four_probability":0.2}`)
	v, err := ParseVariant(data)
	if err != nil {
		t.Fatalf("ParseVariant failed: %v", err)
	}
	if v.Size != 5 || v.StartTiles != 3 || v.WinValue != 4096 || v.FourProbability != 0.2 {
		t.Errorf("Unexpected rules: %+v", v.Rules)
	}

	if _, err := ParseVariant([]byte(`{`)); err == nil {
		t.Error("Expected parse error for malformed JSON")
	}
}
