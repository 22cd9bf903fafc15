package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/duel2048/logger"
	"github.com/wricardo/duel2048/monitor"
)

// queueSize bounds each agent's request queue. Requests of superseded games
// may still sit in it after a restart.
const queueSize = 4

// Coordinator issues decision requests to the two agents and filters their
// responses by game epoch.
//
// Apart from GameID, its methods must be called from a single goroutine,
// the one that owns the game state. Run drives the workers on their own
// goroutines; they communicate with the owner only through channels.
type Coordinator struct {
	workers [2]Worker
	metrics *monitor.Metrics

	gameID     atomic.Int64
	playerAI   bool
	opponentAI bool
	// pending holds the game epoch of the in-flight request per kind, 0 if none
	pending [2]int64

	requests  [2]chan Request
	responses chan Response
}

// NewCoordinator creates a coordinator at game epoch 1 with both AI modes off
func NewCoordinator(player, opponent Worker, metrics *monitor.Metrics) *Coordinator {
	c := &Coordinator{
		workers:   [2]Worker{player, opponent},
		metrics:   metrics,
		responses: make(chan Response, 2*queueSize),
	}
	for i := range c.requests {
		c.requests[i] = make(chan Request, queueSize)
	}
	c.gameID.Store(1)
	return c
}

// Run serves both request queues until ctx is done
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range Kinds {
		g.Go(func() error {
			return c.serve(ctx, kind)
		})
	}
	return g.Wait()
}

func (c *Coordinator) serve(ctx context.Context, kind Kind) error {
	worker := c.workers[kind]
	for {
		var req Request
		select {
		case <-ctx.Done():
			return nil
		case req = <-c.requests[kind]:
		}

		var resp Response
		if req.GameID != c.gameID.Load() {
			// Superseded before it was picked up; answer without computing
			// so the owner can release the pending slot.
			resp = Response{GameID: req.GameID, Kind: kind, TraceID: req.TraceID, Err: "superseded"}
		} else {
			start := time.Now()
			var err error
			resp, err = worker.Decide(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Log.Warnw("Agent worker failed",
					"kind", kind.String(), "game_id", req.GameID, "trace_id", req.TraceID, "error", err)
				resp = Response{GameID: req.GameID, Kind: kind, TraceID: req.TraceID, Err: err.Error()}
			} else {
				c.metrics.ObserveDecision(kind.String(), time.Since(start))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case c.responses <- resp:
		}
	}
}

// Responses delivers every worker answer, stale ones included
func (c *Coordinator) Responses() <-chan Response {
	return c.responses
}

// GameID returns the current epoch. Safe for concurrent use.
func (c *Coordinator) GameID() int64 {
	return c.gameID.Load()
}

// NewGame advances the epoch, making every outstanding response stale
func (c *Coordinator) NewGame() int64 {
	return c.gameID.Add(1)
}

func (c *Coordinator) PlayerAI() bool {
	return c.playerAI
}

func (c *Coordinator) OpponentAI() bool {
	return c.opponentAI
}

// SetPlayerAI toggles the player agent. The caller issues the first
// request through RequestPlayerMove.
func (c *Coordinator) SetPlayerAI(enabled bool) {
	c.playerAI = enabled
}

// SetOpponentAI toggles the opponent agent. An in-flight request is not
// cancelled and its response still counts.
func (c *Coordinator) SetOpponentAI(enabled bool) {
	c.opponentAI = enabled
}

// ShouldConsultOpponent decides who places the next tile: the opponent
// agent when it is enabled and more than one cell is empty.
func (c *Coordinator) ShouldConsultOpponent(emptyCells int) bool {
	return c.opponentAI && emptyCells > 1
}

// RequestPlayerMove asks the player agent for a move. Nothing is sent when
// player AI is off, the game waits on the opponent, the game is over or a
// player request for this game is already in flight.
func (c *Coordinator) RequestPlayerMove(board BoardEncoding, waiting, over bool) bool {
	if !c.playerAI || waiting || over {
		return false
	}
	return c.send(PlayerMove, board)
}

// RequestOpponentPlacement asks the opponent agent where to spawn
func (c *Coordinator) RequestOpponentPlacement(board BoardEncoding) bool {
	if !c.opponentAI {
		return false
	}
	return c.send(OpponentPlacement, board)
}

// Pending reports whether a request of kind is in flight for the current game
func (c *Coordinator) Pending(kind Kind) bool {
	return kind.Valid() && c.pending[kind] == c.GameID()
}

func (c *Coordinator) send(kind Kind, board BoardEncoding) bool {
	gameID := c.GameID()
	if c.pending[kind] == gameID {
		return false
	}

	req := Request{GameID: gameID, Kind: kind, Board: board, TraceID: uuid.NewString()}
	select {
	case c.requests[kind] <- req:
	default:
		logger.Log.Warnw("Dropping agent request", "kind", kind.String(), "game_id", gameID, "error", ErrQueueFull)
		return false
	}

	c.pending[kind] = gameID
	c.metrics.IncAgentRequests(kind.String())
	logger.Log.Debugw("Agent request sent", "kind", kind.String(), "game_id", gameID, "trace_id", req.TraceID)
	return true
}

// Accept releases the pending slot of resp and reports whether resp
// belongs to the current game. Stale responses are logged and dropped.
func (c *Coordinator) Accept(resp Response) bool {
	if !resp.Kind.Valid() {
		logger.Log.Warnw("Dropping agent response of unknown kind", "kind", int(resp.Kind), "game_id", resp.GameID)
		return false
	}
	if c.pending[resp.Kind] == resp.GameID {
		c.pending[resp.Kind] = 0
	}

	if resp.GameID != c.GameID() {
		c.metrics.IncStaleResponses(resp.Kind.String())
		logger.Log.Debugw("Dropping stale agent response",
			"kind", resp.Kind.String(), "game_id", resp.GameID, "current_game_id", c.GameID())
		return false
	}
	return true
}
