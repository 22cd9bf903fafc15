package engine

// TileID identifies a tile record in a grid's arena. Zero means "no tile".
type TileID uint32

// Tile is a single numbered piece. Its value never changes; its position
// does while a move is resolved.
type Tile struct {
	ID               TileID
	Position         Position
	Value            int
	PreviousPosition *Position
	// MergedFrom holds the two source tiles when this tile was created by a
	// merge during the current move.
	MergedFrom *[2]TileID
}

// savePosition snapshots the current position as the pre-move position
func (t *Tile) savePosition() {
	prev := t.Position
	t.PreviousPosition = &prev
}

// Merged reports whether the tile is the result of a merge this move
func (t *Tile) Merged() bool {
	return t.MergedFrom != nil
}

func (t *Tile) view() TileView {
	v := TileView{ID: t.ID, Position: t.Position, Value: t.Value}
	if t.PreviousPosition != nil {
		prev := *t.PreviousPosition
		v.PreviousPosition = &prev
	}
	if t.MergedFrom != nil {
		from := *t.MergedFrom
		v.MergedFrom = &from
	}
	return v
}
