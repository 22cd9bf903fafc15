// Package websocket pushes game renders to browsers and accepts their input.
//
// A Hub owns every connection. Clients attach to one session through
// ServeWS; the game controller of that session renders through
// Hub.Renderer, which queues messages without ever blocking the game loop.
//
// Outgoing messages:
//
//	{"session_id": "ab12", "event": "state_update", "snapshot": {...}}
//	{"session_id": "ab12", "event": "continue_game"}
//	{"session_id": "ab12", "event": "error", "error": "..."}
//
// Incoming events:
//
//	{"event": "move", "direction": 0}        // 0 up, 1 right, 2 down, 3 left
//	{"event": "restart"}
//	{"event": "keep_playing"}
//	{"event": "set_player_ai", "enabled": true}
//	{"event": "set_opponent_ai", "enabled": false}
//
// Input events are forwarded to the GameService; the resulting state comes
// back to every client of the session as a state_update.
package websocket
