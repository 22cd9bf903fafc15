// Package api provides the HTTP REST API of the game server.
//
// Endpoints:
//
// Sessions:
//   - POST /api/sessions - Create a session ({"config_id": "big"}, default variant when empty)
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Get a session
//   - DELETE /api/sessions/{id} - Delete a session
//
// Game:
//   - GET /api/sessions/{id}/state - Current snapshot
//   - POST /api/sessions/{id}/move - {"direction": "left"} or {"direction": 3}
//   - POST /api/sessions/{id}/restart - Start a new game
//   - POST /api/sessions/{id}/keep-playing - Continue after reaching the win tile
//   - POST /api/sessions/{id}/ai - {"player": true, "opponent": false}, either flag optional
//
// Variants:
//   - GET /api/configs - List variants
//   - GET /api/configs/{name} - Get one variant
//   - POST /api/configs - Save a variant
//
// Other:
//   - GET /ws?session={id} - WebSocket stream of the session's renders
//   - GET /health - Liveness probe
//
// Errors are returned as {"error": "..."} with 404 for unknown sessions and
// variants, 400 for invalid input and 422 when agents are enabled on a board
// they cannot play.
package api
