// Package session runs duel2048 games.
//
// A Controller owns one game. User input, agent responses and toggles are
// all applied on the goroutine running Controller.Run, which makes every
// state change of a game sequential. After each change the controller
// settles: it records the best score, persists or clears the game through
// its GameStore and hands a Snapshot to its Renderers.
//
// Agents:
//
// With the opponent agent on and more than one empty cell, a user move
// does not spawn a tile. The game waits, ignoring user moves, until the
// opponent names the cell. With the player agent on, every settled state
// that is not waiting and not over asks the player agent for a move.
// Responses are tagged with the game epoch; a restart bumps the epoch and
// makes every outstanding response stale.
//
// Sessions:
//
// Manager keeps one running Controller per session, with 4-character
// case-insensitive IDs. Sessions are backed by a Persistence (file, memory,
// or the SQL stores in package store) so that evicted or crashed sessions
// are restored on first access.
//
// Usage:
//
//	manager := session.NewManager(session.ManagerConfig{Persistence: p})
//	defer manager.Close()
//
//	sess, err := manager.Create("", "classic", engine.ClassicVariant())
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, snap, err := sess.Game.Move(ctx, engine.Left)
package session
