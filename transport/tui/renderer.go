package tui

import "github.com/wricardo/duel2048/game/engine"

// Renderer hands the game's renders to the Model. Only the latest render
// matters, so a full buffer drops the oldest one instead of blocking.
type Renderer struct {
	updates chan engine.Snapshot
}

func NewRenderer() *Renderer {
	return &Renderer{updates: make(chan engine.Snapshot, 1)}
}

func (r *Renderer) Actuate(grid engine.GridSnapshot, status engine.Status) {
	snap := engine.Snapshot{Grid: grid, Status: status}
	for {
		select {
		case r.updates <- snap:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

// ContinueGame has nothing to clear: the banner follows the status
func (r *Renderer) ContinueGame() {}
