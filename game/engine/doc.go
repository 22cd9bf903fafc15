// Package engine provides the core game logic for the duel2048 sliding-tile game.
//
// The engine package implements the game mechanics including:
//   - A fixed-size grid of optional tiles with bounds and availability queries
//   - An arena of tile records with per-move merge lineage
//   - Direction traversal, farthest-position search and single-merge resolution
//   - Score, win and game-over detection
//   - Serialization of the game for persistence and snapshots for rendering
//
// Core Types:
//
// GameEngine owns one game: its Grid, score and the over/won/keep-playing
// flags. Grid stores tile IDs per cell and keeps the tile records in an
// arena, so merge lineage is expressed as two sibling IDs instead of pointers.
// Rules (loaded from a Variant) fix the grid size, start tiles, win value and
// the probability of spawning a 4.
//
// Usage:
//
//	rng := rand.New(rand.NewPCG(1, 2))
//	game := engine.NewEngine(engine.DefaultRules(), rng)
//
//	result := game.Move(engine.Left)
//	if result.Moved {
//		if _, err := game.AddRandomTile(); err != nil {
//			// the board is full
//		}
//		game.CheckGameOver()
//	}
//	snapshot := game.Grid().Snapshot()
//
// Game Rules:
//
// Every move slides all tiles as far as possible in one direction. Two
// tiles of equal value that collide merge into one tile of twice the value
// and the merged value is added to the score. A tile takes part in at most
// one merge per move. Reaching the win value sets the won flag; the game is
// over when the grid is full and no two adjacent tiles share a value.
//
// Placing the new tile after a move is left to the caller, which is how the
// session controller hands that decision to an opponent agent.
package engine
