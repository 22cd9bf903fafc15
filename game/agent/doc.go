// Package agent implements the decision agents of duel2048 and the
// coordinator that talks to them.
//
// Two agents take part in every game: the player agent chooses a move
// direction and the opponent agent chooses where the next tile spawns.
// Both are consulted through the same request/response protocol:
//
//	Request{GameID, Kind, Board} -> Response{GameID, Kind, Result}
//
// Board is the packed 4x4 encoding: one 16-bit integer per row, four
// nibbles per row holding log2 of each tile (0 for empty), column 0 in the
// most-significant nibble. Result is a direction (0 up, 1 right, 2 down,
// 3 left) for player requests and a placement slot in [0,16) for opponent
// requests. Slots index the fixed Placements table, bottom-right first.
//
// Coordinator:
//
// The Coordinator owns the game epoch (GameID), the AI toggles and one
// request queue per agent. Workers run on their own goroutines and post
// responses back on a single channel; the session controller drains that
// channel on its event loop and calls Accept, which drops any response
// carrying an outdated GameID. No request is ever cancelled.
//
// Workers:
//
// LocalWorker runs a Solver in-process. RemoteWorker forwards requests to
// a process started with Serve over net/rpc. Expectimax is the built-in
// Solver.
package agent
