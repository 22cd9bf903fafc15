// Package mcp exposes the game to LLM agents over the Model Context Protocol.
//
// Client is a thin proxy: every tool call becomes a request to the REST API
// of a running server, so MCP players share sessions with browsers and the
// terminal client.
//
// MCP Tools:
//   - create_session: Create a session, optionally for a named variant
//   - list_sessions: List all active sessions
//   - get_session: Get specific session details
//   - game_state: Board and status of a session
//   - move: Slide the tiles in one direction
//   - restart: Start a new game in the session
//   - keep_playing: Continue after reaching the win tile
//   - set_ai: Turn the player or opponent agent on or off
//   - list_configs: List available variants
//   - game_instructions: The rules, as text
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
