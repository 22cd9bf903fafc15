package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/service"
	"github.com/wricardo/duel2048/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Time allowed for a client event to reach its game
	eventTimeout = 5 * time.Second
)

// Outbound events
const (
	EventStateUpdate  = "state_update"
	EventContinueGame = "continue_game"
	EventError        = "error"
)

// Inbound events
const (
	EventMove          = "move"
	EventRestart       = "restart"
	EventKeepPlaying   = "keep_playing"
	EventSetPlayerAI   = "set_player_ai"
	EventSetOpponentAI = "set_opponent_ai"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is sent from the hub to clients
type Message struct {
	SessionID string           `json:"session_id"`
	Event     string           `json:"event"`
	Snapshot  *engine.Snapshot `json:"snapshot,omitempty"`
	Error     string           `json:"error,omitempty"`

	// to restricts delivery to one client
	to *Client
}

// ClientEvent is an input event sent by a client
type ClientEvent struct {
	Event     string `json:"event"`
	Direction *int   `json:"direction,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// Hub maintains the set of active clients and fans game renders out to them
type Hub struct {
	games service.GameService

	// Registered clients by session ID, written only by Run
	mu       sync.RWMutex
	sessions map[string]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates a new WebSocket hub. games receives the input events sent
// by clients and may be nil for a render-only hub.
func NewHub(games service.GameService) *Hub {
	return &Hub{
		games:      games,
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// ServeWS upgrades the request and attaches the client to sessionID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of clients attached to sessionID
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// BroadcastToSession queues a state update for every client of a session.
// It never blocks: when the queue is full the update is dropped.
func (h *Hub) BroadcastToSession(sessionID string, snap *engine.Snapshot) {
	h.enqueue(&Message{SessionID: sessionID, Event: EventStateUpdate, Snapshot: snap})
}

// BroadcastEvent queues a bare event for every client of a session
func (h *Hub) BroadcastEvent(sessionID, event string) {
	h.enqueue(&Message{SessionID: sessionID, Event: event})
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		logger.Log.Debugw("WebSocket broadcast queue full, dropping message",
			"session_id", message.SessionID, "event", message.Event)
	}
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true

	logger.Log.Infow("Client registered",
		"session_id", client.sessionID, "clients", len(h.sessions[client.sessionID]))
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	// Clean up empty sessions
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}

	logger.Log.Infow("Client unregistered",
		"session_id", client.sessionID, "clients", len(clients))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// broadcastMessage sends a message to all clients in a session
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Warnw("Failed to marshal WebSocket message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.sessions[message.SessionID] {
		if message.to != nil && message.to != client {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow reader
			h.removeLocked(client)
		}
	}
}

// handleEvent forwards a client input event to its game
func (h *Hub) handleEvent(c *Client, ev ClientEvent) {
	if h.games == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var err error
	switch ev.Event {
	case EventMove:
		if ev.Direction == nil {
			h.replyError(c, "move requires a direction")
			return
		}
		_, err = h.games.Move(ctx, c.sessionID, strconv.Itoa(*ev.Direction))
	case EventRestart:
		_, err = h.games.Restart(ctx, c.sessionID)
	case EventKeepPlaying:
		_, err = h.games.KeepPlaying(ctx, c.sessionID)
	case EventSetPlayerAI:
		if ev.Enabled == nil {
			h.replyError(c, "set_player_ai requires enabled")
			return
		}
		_, err = h.games.SetAI(ctx, c.sessionID, ev.Enabled, nil)
	case EventSetOpponentAI:
		if ev.Enabled == nil {
			h.replyError(c, "set_opponent_ai requires enabled")
			return
		}
		_, err = h.games.SetAI(ctx, c.sessionID, nil, ev.Enabled)
	default:
		h.replyError(c, "unknown event "+strconv.Quote(ev.Event))
		return
	}

	if err != nil {
		logger.Log.Debugw("WebSocket event failed",
			"session_id", c.sessionID, "event", ev.Event, "error", err)
		h.replyError(c, err.Error())
	}
}

func (h *Hub) replyError(c *Client, msg string) {
	h.enqueue(&Message{SessionID: c.sessionID, Event: EventError, Error: msg, to: c})
}

// readPump reads input events from the connection until it closes
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warnw("WebSocket read error", "session_id", c.sessionID, "error", err)
			}
			return
		}

		var ev ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.hub.replyError(c, "invalid event: "+err.Error())
			continue
		}
		c.hub.handleEvent(c, ev)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
