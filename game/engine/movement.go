package engine

// Traversals holds the column and row visiting order for one move
type Traversals struct {
	X []int
	Y []int
}

// BuildTraversals orders cells so the ones farthest along v are visited first
func BuildTraversals(size int, v Vector) Traversals {
	t := Traversals{X: make([]int, size), Y: make([]int, size)}
	for pos := 0; pos < size; pos++ {
		t.X[pos] = pos
		t.Y[pos] = pos
	}

	if v.X == 1 {
		reverse(t.X)
	}
	if v.Y == 1 {
		reverse(t.Y)
	}
	return t
}

// FindFarthestPosition steps from cell along v while the next cell is in
// bounds and empty. It returns the last empty cell reached and the first
// cell beyond it, which is either occupied or out of bounds.
func (g *Grid) FindFarthestPosition(cell Position, v Vector) (farthest, next Position) {
	for {
		farthest = cell
		cell = farthest.Add(v)
		if !g.CellAvailable(cell) {
			return farthest, cell
		}
	}
}

// Move slides every tile in the given direction, merging equal neighbours
// at most once per tile. It never places a new tile.
func (e *GameEngine) Move(dir Direction) MoveResult {
	result := MoveResult{Direction: dir}
	if !dir.Valid() || e.IsGameTerminated() {
		return result
	}

	grid := e.grid
	vector := dir.Vector()
	traversals := BuildTraversals(grid.Size(), vector)

	grid.prepareTiles()

	for _, x := range traversals.X {
		for _, y := range traversals.Y {
			cell := Position{X: x, Y: y}
			tile := grid.CellContent(cell)
			if tile == nil {
				continue
			}

			farthest, nextPos := grid.FindFarthestPosition(cell, vector)
			next := grid.CellContent(nextPos)

			if next != nil && next.Value == tile.Value && !next.Merged() {
				merged := grid.NewTile(nextPos, tile.Value*2)
				merged.MergedFrom = &[2]TileID{tile.ID, next.ID}

				// Both sources leave the grid, so the merge cell is empty
				grid.retire(next)
				grid.retire(tile)
				// Converge the source onto the merge cell for animation
				tile.Position = nextPos
				grid.place(merged)

				e.score += merged.Value
				result.ScoreDelta += merged.Value
				result.Merges = append(result.Merges, Merge{
					Tile:     merged.ID,
					From:     *merged.MergedFrom,
					Position: nextPos,
					Value:    merged.Value,
				})

				if merged.Value == e.rules.WinValue && !e.won {
					e.won = true
					result.Won = true
				}
			} else if farthest != cell {
				grid.moveTile(tile, farthest)
			}

			if tile.Position != cell {
				result.Moved = true
			}
		}
	}

	return result
}

// MovesAvailable reports whether any move can change the grid
func (e *GameEngine) MovesAvailable() bool {
	return e.grid.CellsAvailable() || e.TileMatchesAvailable()
}

// TileMatchesAvailable reports whether two adjacent tiles share a value
func (e *GameEngine) TileMatchesAvailable() bool {
	grid := e.grid
	for x := 0; x < grid.Size(); x++ {
		for y := 0; y < grid.Size(); y++ {
			tile := grid.CellContent(Position{X: x, Y: y})
			if tile == nil {
				continue
			}
			for _, dir := range Directions {
				other := grid.CellContent(tile.Position.Add(dir.Vector()))
				if other != nil && other.Value == tile.Value {
					return true
				}
			}
		}
	}
	return false
}
