package agent

import (
	"math"
	"sync"
)

// Board is a 4x4 grid packed into 64 bits: row 0 in the top 16 bits and,
// within a row, column 0 in the most-significant nibble.
type Board uint64

const (
	rowMask     Board = 0xFFFF
	tableSize         = 65536
	losePenalty       = -200000.0
	noMoveScore       = -900000.0

	// Beyond this many plies below the root only 2-tiles are spawned
	fullSpawnPlies = 4
)

// Solver chooses decisions for both agents
type Solver interface {
	NextMove(b BoardEncoding) int
	NextPlacement(b BoardEncoding) int
}

type rowTables struct {
	left  [tableSize]uint16
	right [tableSize]uint16
	empty [tableSize]uint8
	score [tableSize]float64
}

var (
	tablesOnce sync.Once
	tables     *rowTables
)

func loadTables() *rowTables {
	tablesOnce.Do(func() {
		tables = buildTables()
	})
	return tables
}

func unpackRow(row uint16) [4]uint16 {
	return [4]uint16{row >> 12 & 0xf, row >> 8 & 0xf, row >> 4 & 0xf, row & 0xf}
}

func packRow(line [4]uint16) uint16 {
	return line[0]<<12 | line[1]<<8 | line[2]<<4 | line[3]
}

// slideLine moves a line toward index 0, merging equal pairs once. Two
// 2^15 tiles stay apart since their sum does not fit a nibble.
func slideLine(line [4]uint16) [4]uint16 {
	var out [4]uint16
	n := 0
	var prev uint16
	for _, e := range line {
		if e == 0 {
			continue
		}
		if prev == e && e < maxExponent {
			out[n-1] = e + 1
			prev = 0
			continue
		}
		out[n] = e
		n++
		prev = e
	}
	return out
}

func reverseLine(line [4]uint16) [4]uint16 {
	return [4]uint16{line[3], line[2], line[1], line[0]}
}

// scoreLine rates a single row or column. Empty cells, neighbours that can
// merge, monotonic lines and the largest tile sitting on an edge score well.
func scoreLine(line [4]uint16) float64 {
	var zeros int
	var highest uint16
	var sum float64
	for _, e := range line {
		if e == 0 {
			zeros++
			continue
		}
		sum += math.Pow(float64(e), 1.5)
		if e > highest {
			highest = e
		}
	}

	var inc, dec int
	var closeness float64
	for i := 0; i < 3; i++ {
		a, b := line[i], line[i+1]
		if a >= b {
			inc++
		}
		if a <= b {
			dec++
		}
		diff := int(a) - int(b)
		if diff < 0 {
			diff = -diff
		}
		switch {
		case a == b:
			closeness += math.Pow(float64(a)+1, 1.6) * 2.2
		case diff <= 1:
			closeness += math.Pow(float64(max(a, b)), 1.5)
		default:
			closeness -= math.Pow(float64(diff), 1.6) * 1.2
		}
	}

	score := 2304.0 + float64(zeros)*341.0 + closeness*22.0 - sum*45.0

	edge := math.Pow(float64(highest), 1.5575) * 39.0
	if line[0] == highest || line[3] == highest {
		score += edge
	} else {
		score -= edge
	}

	if inc == 3 || dec == 3 {
		score += 982.0
	} else {
		score -= 982.0
	}
	return score
}

func buildTables() *rowTables {
	t := &rowTables{}
	for r := 0; r < tableSize; r++ {
		row := uint16(r)
		line := unpackRow(row)

		t.left[r] = packRow(slideLine(line))
		t.right[r] = packRow(reverseLine(slideLine(reverseLine(line))))
		t.score[r] = scoreLine(line)
		for _, e := range line {
			if e == 0 {
				t.empty[r]++
			}
		}
	}
	return t
}

// transpose swaps rows and columns
func transpose(x Board) Board {
	a1 := x & 0xF0F00F0FF0F00F0F
	a2 := x & 0x0000F0F00000F0F0
	a3 := x & 0x0F0F00000F0F0000
	a := a1 | (a2 << 12) | (a3 >> 12)
	b1 := a & 0xFF00FF0000FF00FF
	b2 := a & 0x00FF00FF00000000
	b3 := a & 0x00000000FF00FF00
	return b1 | (b2 >> 24) | (b3 << 24)
}

func (t *rowTables) applyRows(b Board, table *[tableSize]uint16) Board {
	var out Board
	for shift := 0; shift < 64; shift += 16 {
		out |= Board(table[(b>>shift)&rowMask]) << shift
	}
	return out
}

// move returns the board after sliding in dir (0 up, 1 right, 2 down, 3 left)
func (t *rowTables) move(b Board, dir int) Board {
	switch dir {
	case 0:
		return transpose(t.applyRows(transpose(b), &t.left))
	case 1:
		return t.applyRows(b, &t.right)
	case 2:
		return transpose(t.applyRows(transpose(b), &t.right))
	case 3:
		return t.applyRows(b, &t.left)
	}
	return b
}

func (t *rowTables) countEmpty(b Board) int {
	n := 0
	for shift := 0; shift < 64; shift += 16 {
		n += int(t.empty[(b>>shift)&rowMask])
	}
	return n
}

func (t *rowTables) heuristic(b Board) float64 {
	var score float64
	tb := transpose(b)
	for shift := 0; shift < 64; shift += 16 {
		score += t.score[(b>>shift)&rowMask]
		score += t.score[(tb>>shift)&rowMask]
	}
	return score
}

// Expectimax searches the game tree, maximizing over player moves and
// averaging over tile spawns.
type Expectimax struct {
	// MaxDepth caps the adaptive search depth when positive
	MaxDepth int
}

// NewExpectimax returns a solver with the given depth cap (0 for none)
func NewExpectimax(maxDepth int) *Expectimax {
	loadTables()
	return &Expectimax{MaxDepth: maxDepth}
}

func (e *Expectimax) capDepth(depth int) int {
	if e.MaxDepth > 0 && depth > e.MaxDepth {
		return e.MaxDepth
	}
	return depth
}

// NextMove returns the direction with the best expected score. It returns
// 0 when no direction changes the board.
func (e *Expectimax) NextMove(enc BoardEncoding) int {
	t := loadTables()
	b := enc.Board()

	depth := 6
	empty := t.countEmpty(b)
	if empty < 8 {
		depth = 7
	}
	if empty < 3 {
		depth = 9
	}
	depth = e.capDepth(depth)

	s := newSearch(t, depth)
	best, dir := noMoveScore, 0
	for d := 0; d < 4; d++ {
		next := t.move(b, d)
		if next == b {
			continue
		}
		if score := s.spawn(next, depth-1); score > best {
			best, dir = score, d
		}
	}
	return dir
}

// NextPlacement returns the empty slot whose spawn leaves the player the
// lowest expected score. It returns 0 when the board is full.
func (e *Expectimax) NextPlacement(enc BoardEncoding) int {
	t := loadTables()
	b := enc.Board()

	depth := 6
	if t.countEmpty(b) < 5 {
		depth = 7
	}
	depth = e.capDepth(depth)

	s := newSearch(t, depth)
	worst, slot := math.Inf(1), 0
	for i := 0; i < 16; i++ {
		if (b>>(i*4))&0xf != 0 {
			continue
		}
		score := s.player(b|1<<(i*4), depth-1)*0.9 + s.player(b|2<<(i*4), depth-1)*0.1
		if score < worst {
			worst, slot = score, i
		}
	}
	return slot
}

type cacheKey struct {
	board Board
	depth int
	spawn bool
}

// search is the state of one decision. Its cache lives for a single call.
type search struct {
	t     *rowTables
	start int
	cache map[cacheKey]float64
}

func newSearch(t *rowTables, start int) *search {
	return &search{t: t, start: start, cache: make(map[cacheKey]float64)}
}

// player is a max node: the best score over moves that change the board
func (s *search) player(b Board, depth int) float64 {
	if depth <= 0 {
		return s.t.heuristic(b)
	}
	key := cacheKey{board: b, depth: depth}
	if score, ok := s.cache[key]; ok {
		return score
	}

	best := losePenalty
	for d := 0; d < 4; d++ {
		next := s.t.move(b, d)
		if next == b {
			continue
		}
		if score := s.spawn(next, depth-1); score > best {
			best = score
		}
	}

	s.cache[key] = best
	return best
}

// spawn is a chance node: the average over every empty cell of a 2 (p=0.9)
// or a 4 (p=0.1) landing there.
func (s *search) spawn(b Board, depth int) float64 {
	if depth <= 0 {
		return s.t.heuristic(b)
	}
	key := cacheKey{board: b, depth: depth, spawn: true}
	if score, ok := s.cache[key]; ok {
		return score
	}

	onlyTwos := s.start-depth > fullSpawnPlies
	var total float64
	count := 0
	for i := 0; i < 16; i++ {
		if (b>>(i*4))&0xf != 0 {
			continue
		}
		count++
		if onlyTwos {
			total += s.player(b|1<<(i*4), depth-1)
			continue
		}
		total += s.player(b|1<<(i*4), depth-1) * 0.9
		total += s.player(b|2<<(i*4), depth-1) * 0.1
	}

	var score float64
	if count > 0 {
		score = total / float64(count)
	} else {
		score = s.player(b, depth-1)
	}
	s.cache[key] = score
	return score
}
