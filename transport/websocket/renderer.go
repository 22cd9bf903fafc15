package websocket

import "github.com/wricardo/duel2048/game/engine"

// Renderer pushes the renders of one game to the clients of its session.
// It satisfies session.Renderer and never blocks the game loop.
type Renderer struct {
	hub       *Hub
	sessionID string
}

// Renderer returns the renderer for sessionID
func (h *Hub) Renderer(sessionID string) *Renderer {
	return &Renderer{hub: h, sessionID: sessionID}
}

func (r *Renderer) Actuate(grid engine.GridSnapshot, status engine.Status) {
	r.hub.BroadcastToSession(r.sessionID, &engine.Snapshot{Grid: grid, Status: status})
}

func (r *Renderer) ContinueGame() {
	r.hub.BroadcastEvent(r.sessionID, EventContinueGame)
}
