package agent

import (
	"fmt"
	"math/bits"

	"github.com/wricardo/duel2048/game/engine"
)

// BoardSize is the only grid size the agents understand
const BoardSize = 4

// maxExponent is the largest log2 value a nibble can hold (32768)
const maxExponent = 15

// BoardEncoding is the wire form of a 4x4 grid: one packed row per entry,
// column 0 in the most-significant nibble.
type BoardEncoding [4]uint16

// Placements maps an opponent slot to a cell, bottom-right to top-left.
// Slot i is nibble i of Board counted from the least-significant end.
var Placements = [16]engine.Position{
	{X: 3, Y: 3}, {X: 2, Y: 3}, {X: 1, Y: 3}, {X: 0, Y: 3},
	{X: 3, Y: 2}, {X: 2, Y: 2}, {X: 1, Y: 2}, {X: 0, Y: 2},
	{X: 3, Y: 1}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 1},
	{X: 3, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 0},
}

// EncodeBoard packs a 4x4 grid. Other sizes and tiles above 2^15 return
// ErrUnsupportedBoard.
func EncodeBoard(g *engine.Grid) (BoardEncoding, error) {
	var enc BoardEncoding
	if g.Size() != BoardSize {
		return enc, fmt.Errorf("%w: grid size %d", ErrUnsupportedBoard, g.Size())
	}

	for y := 0; y < BoardSize; y++ {
		var row uint16
		for x := 0; x < BoardSize; x++ {
			row <<= 4
			tile := g.CellContent(engine.Position{X: x, Y: y})
			if tile == nil {
				continue
			}
			exp := bits.TrailingZeros(uint(tile.Value))
			if exp > maxExponent {
				return enc, fmt.Errorf("%w: tile %d at (%d,%d)", ErrUnsupportedBoard, tile.Value, x, y)
			}
			row |= uint16(exp)
		}
		enc[y] = row
	}
	return enc, nil
}

// PlacementPosition maps an opponent result to its cell. ok is false when
// the slot is outside [0,16).
func PlacementPosition(slot int) (engine.Position, bool) {
	if slot < 0 || slot >= len(Placements) {
		return engine.Position{}, false
	}
	return Placements[slot], true
}

// Value returns the tile value at (x,y), 0 for empty
func (b BoardEncoding) Value(x, y int) int {
	exp := (b[y] >> ((BoardSize - 1 - x) * 4)) & 0xf
	if exp == 0 {
		return 0
	}
	return 1 << exp
}

// Board joins the rows into one 64-bit word, row 0 on top
func (b BoardEncoding) Board() Board {
	return Board(b[0])<<48 | Board(b[1])<<32 | Board(b[2])<<16 | Board(b[3])
}

// Encoding splits a 64-bit word back into rows
func (b Board) Encoding() BoardEncoding {
	return BoardEncoding{uint16(b >> 48), uint16(b >> 32), uint16(b >> 16), uint16(b)}
}
