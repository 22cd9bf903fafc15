package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Duel 2048",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Duel 2048 - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Slide the tiles to merge equal values and build the win tile (2048 on the classic board).
An opponent may be placing the new tiles instead of chance.

AVAILABLE TOOLS:
- create_session: Create a new game session
- list_sessions: List all active sessions
- get_session: Get session details
- game_state: Get the current board and status
- move: Slide the tiles (up/right/down/left) - requires intent explanation
- restart: Start a new game in the session
- keep_playing: Continue after reaching the win tile
- set_ai: Turn the player or opponent agent on or off
- list_configs: List available game variants
- game_instructions: Get the complete rules

NOTE: The 'intent' parameter on move serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionSchema(extra map[string]interface{}, required ...string) mcp.ToolInputSchema {
	props := map[string]interface{}{
		"session_id": map[string]interface{}{
			"type":        "string",
			"description": "Session ID",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   append([]string{"session_id"}, required...),
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session with optional variant selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Variant to play, see list_configs (optional, classic by default)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: sessionSchema(nil),
	}, c.handleGetSession)

	// Game operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current board and status",
		InputSchema: sessionSchema(nil),
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "move",
		Description: "Slide every tile in a direction",
		InputSchema: sessionSchema(map[string]interface{}{
			"direction": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"up", "right", "down", "left"},
				"description": "Direction to slide",
			},
			"intent": map[string]interface{}{
				"type":        "string",
				"description": "Brief explanation of the intent behind this move (serves as a rubber duck to help explain your reasoning)",
			},
		}, "direction"),
	}, c.handleMove)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "restart",
		Description: "Start a new game in the session",
		InputSchema: sessionSchema(nil),
	}, c.handleRestart)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "keep_playing",
		Description: "Continue playing after reaching the win tile",
		InputSchema: sessionSchema(nil),
	}, c.handleKeepPlaying)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "set_ai",
		Description: "Turn the player agent (makes the moves) or the opponent agent (places the new tiles) on or off",
		InputSchema: sessionSchema(map[string]interface{}{
			"player": map[string]interface{}{
				"type":        "boolean",
				"description": "Enable the player agent (optional)",
			},
			"opponent": map[string]interface{}{
				"type":        "boolean",
				"description": "Enable the opponent agent (optional)",
			},
		}),
	}, c.handleSetAI)

	// Configuration
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available game variants",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the complete game rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func sessionPath(args map[string]interface{}, suffix string) (string, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + sessionID + suffix, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	configID, _ := args["config_id"].(string)

	body := map[string]string{}
	if configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Created session: %s\nConfig: %s\n\n%s",
		session.ID, session.ConfigName, formatSnapshot(session.GameState))), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		score := 0
		if s.GameState != nil {
			score = s.GameState.Status.Score
		}
		fmt.Fprintf(&b, "- %s (Config: %s, Score: %d, Created: %s)\n",
			s.ID, s.ConfigName, score, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", path, nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.Snapshot
	if err := c.apiCall(ctx, "GET", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&state)), nil
}

func (c *Client) handleMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/move")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction, _ := args["direction"].(string)

	// intent is only there to make the caller think; it is not sent
	_ = args["intent"]

	var result service.MoveResult
	if err := c.apiCall(ctx, "POST", path, map[string]interface{}{"direction": direction}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatMoveResult(&result)), nil
}

func (c *Client) handleRestart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/restart")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		State *engine.Snapshot `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("New game started\n\n" + formatSnapshot(response.State)), nil
}

func (c *Client) handleKeepPlaying(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/keep-playing")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		State *engine.Snapshot `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("Keep going!\n\n" + formatSnapshot(response.State)), nil
}

func (c *Client) handleSetAI(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/ai")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]bool{}
	if v, ok := args["player"].(bool); ok {
		body["player"] = v
	}
	if v, ok := args["opponent"].(bool); ok {
		body["opponent"] = v
	}
	if len(body) == 0 {
		return mcp.NewToolResultError("player or opponent is required"), nil
	}

	var state engine.Snapshot
	if err := c.apiCall(ctx, "POST", path, body, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&state)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Variants:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&b, "• %s (config_id: %s)\n  %s\n  Grid: %dx%d, Win tile: %d\n\n",
			config.Name, config.ConfigID, config.Description, config.GridSize, config.GridSize, config.WinValue)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Duel 2048 - Complete Instructions

GAME OBJECTIVE:
Merge tiles until one of them reaches the win value (2048 on the classic board).

GAME MECHANICS:
• A move slides every tile as far as it can go in the chosen direction
• Two tiles of equal value that collide merge into one tile of twice the value
• A tile merges at most once per move
• Each merge adds the new tile's value to the score
• After every move that changed the board a new tile appears (2, or 4 one time in ten)

THE OPPONENT:
• With the opponent agent on, it chooses where the new tile appears, and it
  will pick the most annoying cell it can find
• While it thinks the game is waiting and moves are ignored; game_state shows
  "waiting for opponent"
• When only one cell is left it is filled immediately

THE PLAYER AGENT:
• With the player agent on, an expectimax search plays the moves for you
• You can still move yourself; your move wins if it arrives first

MOVEMENT COMMANDS:
• up, right, down, left
• A move that changes nothing is a no-op: no tile appears and the turn is not spent

VICTORY CONDITIONS:
• Build the win tile to win; keep_playing lets you go on past it
• The game is over when the board is full and no two neighbours are equal

STRATEGY TIPS:
• Keep the largest tile in a corner and build a monotonic row next to it
• Avoid the direction that pulls the big tile out of its corner
• Keep empty cells available; a cramped board lets the opponent choke you

Good luck!`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nConfig: %s\nCreated: %s\n\n%s",
		session.ID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatSnapshot(session.GameState))
}

func formatSnapshot(snap *engine.Snapshot) string {
	if snap == nil {
		return "No game state available"
	}

	var result strings.Builder
	status := snap.Status

	fmt.Fprintf(&result, "Score: %d | Best: %d | Game: %d\n", status.Score, status.BestScore, status.GameID)
	fmt.Fprintf(&result, "Player AI: %s | Opponent AI: %s\n\n", onOff(status.PlayerAI), onOff(status.OpponentAI))

	width := 1
	for _, row := range snap.Grid.Values {
		for _, v := range row {
			if n := len(fmt.Sprint(v)); n > width {
				width = n
			}
		}
	}
	for _, row := range snap.Grid.Values {
		for x, v := range row {
			if x > 0 {
				result.WriteString(" ")
			}
			if v == 0 {
				fmt.Fprintf(&result, "%*s", width, ".")
			} else {
				fmt.Fprintf(&result, "%*d", width, v)
			}
		}
		result.WriteString("\n")
	}

	switch {
	case status.Over:
		result.WriteString("\n💀 GAME OVER")
	case status.Won && !status.KeepPlaying:
		result.WriteString("\n🎉 YOU WIN! Use keep_playing to continue")
	case status.Waiting:
		result.WriteString("\n⏳ Waiting for opponent")
	}

	return result.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatMoveResult(result *service.MoveResult) string {
	response := ""
	if result.Success {
		response = fmt.Sprintf("✓ Moved %s\n", result.Direction)
	} else {
		response = fmt.Sprintf("✗ Move %s changed nothing\n", result.Direction)
	}

	if result.Merges > 0 {
		response += fmt.Sprintf("Merges: %d (+%d)\n", result.Merges, result.ScoreDelta)
	}
	if result.Message != "" {
		response += result.Message + "\n"
	}

	response += "\n" + formatSnapshot(result.GameState)
	return response
}
