package engine

import "sort"

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// isTileValue reports whether v is a power of two no smaller than 2
func isTileValue(v int) bool {
	return v >= 2 && v&(v-1) == 0
}

// IsPowerOfTwo reports whether v is a positive power of two
func IsPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

func sortTileViews(views []TileView) {
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
}

// MaxTile returns the highest tile value on the grid, 0 when empty
func MaxTile(g *Grid) int {
	highest := 0
	g.EachCell(func(_, _ int, tile *Tile) {
		if tile != nil && tile.Value > highest {
			highest = tile.Value
		}
	})
	return highest
}

// CountTiles returns the number of tiles on the grid
func CountTiles(g *Grid) int {
	return len(g.tiles)
}
