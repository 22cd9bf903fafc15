package main

// CornerStrategy keeps the largest tiles in the bottom-left corner. It tries
// directions in a fixed preference order and falls back to the next one
// when the server reports that a move changed nothing.
type CornerStrategy struct {
	order    []string
	rejected map[string]bool
}

// Preference order: up is the move that pulls the big tiles out of the corner
var cornerOrder = []string{"down", "left", "right", "up"}

func NewCornerStrategy() *CornerStrategy {
	return &CornerStrategy{
		order:    cornerOrder,
		rejected: make(map[string]bool, len(cornerOrder)),
	}
}

// Next returns the preferred direction not yet rejected on this board
func (s *CornerStrategy) Next() (string, bool) {
	for _, dir := range s.order {
		if !s.rejected[dir] {
			return dir, true
		}
	}
	return "", false
}

// Reject marks dir as a move that does not change the current board
func (s *CornerStrategy) Reject(dir string) {
	s.rejected[dir] = true
}

// Reset forgets rejections once the board changed
func (s *CornerStrategy) Reset() {
	clear(s.rejected)
}
