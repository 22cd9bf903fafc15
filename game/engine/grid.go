package engine

import (
	"fmt"
	"math/rand/v2"
)

// Grid is a fixed-size square of cells, each holding at most one tile.
// Cells hold tile IDs; the tile records live in the grid's arena.
type Grid struct {
	size  int
	cells [][]TileID // cells[x][y]
	tiles map[TileID]*Tile

	// merged keeps the source tiles consumed by merges during the current
	// move so renderers can animate them. Cleared when a move starts.
	merged map[TileID]*Tile
	nextID TileID
}

// NewGrid creates an empty grid
func NewGrid(size int) *Grid {
	cells := make([][]TileID, size)
	for x := range cells {
		cells[x] = make([]TileID, size)
	}
	return &Grid{
		size:   size,
		cells:  cells,
		tiles:  make(map[TileID]*Tile),
		merged: make(map[TileID]*Tile),
	}
}

// NewGridFromSerialized rebuilds a grid from its serialized form. Fresh tile
// records are created; no merge or previous-position state survives.
func NewGridFromSerialized(s SerializedGrid) (*Grid, error) {
	if s.Size < MinGridSize || s.Size > MaxGridSize {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidGrid, s.Size)
	}
	if len(s.Cells) != s.Size {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrInvalidGrid, s.Size, len(s.Cells))
	}

	g := NewGrid(s.Size)
	for x, column := range s.Cells {
		if len(column) != s.Size {
			return nil, fmt.Errorf("%w: column %d has %d cells", ErrInvalidGrid, x, len(column))
		}
		for y, st := range column {
			if st == nil {
				continue
			}
			if st.Position.X != x || st.Position.Y != y {
				return nil, fmt.Errorf("%w: tile at (%d,%d) claims position (%d,%d)",
					ErrInvalidGrid, x, y, st.Position.X, st.Position.Y)
			}
			if !isTileValue(st.Value) {
				return nil, fmt.Errorf("%w: value %d at (%d,%d)", ErrInvalidGrid, st.Value, x, y)
			}
			if err := g.InsertTile(g.NewTile(st.Position, st.Value)); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Size returns the grid's edge length
func (g *Grid) Size() int {
	return g.size
}

// NewTile allocates a tile record with a fresh ID. The tile is not placed
// on the grid until InsertTile is called.
func (g *Grid) NewTile(pos Position, value int) *Tile {
	g.nextID++
	return &Tile{ID: g.nextID, Position: pos, Value: value}
}

// WithinBounds reports whether pos lies on the grid
func (g *Grid) WithinBounds(pos Position) bool {
	return pos.X >= 0 && pos.X < g.size && pos.Y >= 0 && pos.Y < g.size
}

// CellContent returns the tile at pos, or nil when empty or out of bounds
func (g *Grid) CellContent(pos Position) *Tile {
	if !g.WithinBounds(pos) {
		return nil
	}
	id := g.cells[pos.X][pos.Y]
	if id == 0 {
		return nil
	}
	return g.tiles[id]
}

// CellOccupied reports whether pos holds a tile
func (g *Grid) CellOccupied(pos Position) bool {
	return g.CellContent(pos) != nil
}

// CellAvailable reports whether pos is in bounds and empty
func (g *Grid) CellAvailable(pos Position) bool {
	return g.WithinBounds(pos) && !g.CellOccupied(pos)
}

// CellsAvailable reports whether any cell is empty
func (g *Grid) CellsAvailable() bool {
	return len(g.tiles) < g.size*g.size
}

// AvailableCells lists the empty positions, column by column
func (g *Grid) AvailableCells() []Position {
	var cells []Position
	g.EachCell(func(x, y int, tile *Tile) {
		if tile == nil {
			cells = append(cells, Position{X: x, Y: y})
		}
	})
	return cells
}

// RandomAvailableCell picks a uniformly random empty position. The second
// return value is false when the grid is full.
func (g *Grid) RandomAvailableCell(rng *rand.Rand) (Position, bool) {
	cells := g.AvailableCells()
	if len(cells) == 0 {
		return Position{}, false
	}
	return cells[rng.IntN(len(cells))], true
}

// EachCell visits every cell, column by column
func (g *Grid) EachCell(fn func(x, y int, tile *Tile)) {
	for x := 0; x < g.size; x++ {
		for y := 0; y < g.size; y++ {
			fn(x, y, g.CellContent(Position{X: x, Y: y}))
		}
	}
}

// InsertTile places the tile at its own position. The cell must be in
// bounds and empty; otherwise the grid is left unchanged.
func (g *Grid) InsertTile(tile *Tile) error {
	if !g.WithinBounds(tile.Position) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, tile.Position.X, tile.Position.Y)
	}
	if g.CellOccupied(tile.Position) {
		return fmt.Errorf("%w: (%d,%d)", ErrCellOccupied, tile.Position.X, tile.Position.Y)
	}
	g.place(tile)
	return nil
}

// place puts the tile on its cell without checks. The caller guarantees the
// cell is in bounds and empty.
func (g *Grid) place(tile *Tile) {
	if tile.ID == 0 {
		g.nextID++
		tile.ID = g.nextID
	}
	g.cells[tile.Position.X][tile.Position.Y] = tile.ID
	g.tiles[tile.ID] = tile
}

// RemoveTile clears the tile's cell and drops the record
func (g *Grid) RemoveTile(tile *Tile) {
	if g.WithinBounds(tile.Position) && g.cells[tile.Position.X][tile.Position.Y] == tile.ID {
		g.cells[tile.Position.X][tile.Position.Y] = 0
	}
	delete(g.tiles, tile.ID)
}

// retire removes a tile consumed by a merge but keeps its record for the
// rest of the move.
func (g *Grid) retire(tile *Tile) {
	g.RemoveTile(tile)
	g.merged[tile.ID] = tile
}

// moveTile relocates a live tile to an empty cell
func (g *Grid) moveTile(tile *Tile, to Position) {
	g.cells[tile.Position.X][tile.Position.Y] = 0
	g.cells[to.X][to.Y] = tile.ID
	tile.Position = to
}

// prepareTiles clears merge lineage and saves every tile's position
func (g *Grid) prepareTiles() {
	clear(g.merged)
	for _, tile := range g.tiles {
		tile.MergedFrom = nil
		tile.savePosition()
	}
}

// Serialize returns the persisted form of the grid
func (g *Grid) Serialize() SerializedGrid {
	cells := make([][]*SerializedTile, g.size)
	for x := range cells {
		cells[x] = make([]*SerializedTile, g.size)
	}
	g.EachCell(func(x, y int, tile *Tile) {
		if tile != nil {
			cells[x][y] = &SerializedTile{Position: tile.Position, Value: tile.Value}
		}
	})
	return SerializedGrid{Size: g.size, Cells: cells}
}

// Snapshot copies the grid for rendering
func (g *Grid) Snapshot() GridSnapshot {
	values := make([][]int, g.size)
	for y := range values {
		values[y] = make([]int, g.size)
	}
	tiles := make([]TileView, 0, len(g.tiles))
	g.EachCell(func(x, y int, tile *Tile) {
		if tile != nil {
			values[y][x] = tile.Value
			tiles = append(tiles, tile.view())
		}
	})

	var merged []TileView
	for _, tile := range g.merged {
		merged = append(merged, tile.view())
	}
	sortTileViews(merged)

	return GridSnapshot{Size: g.size, Values: values, Tiles: tiles, Merged: merged}
}
