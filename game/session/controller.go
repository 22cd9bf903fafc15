package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wricardo/duel2048/game/agent"
	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/logger"
	"github.com/wricardo/duel2048/monitor"
)

var (
	ErrControllerStopped = errors.New("game controller stopped")
	ErrAgentsUnsupported = errors.New("agents only play 4x4 games")
)

// Move sources, used as metric labels
const (
	SourceUser  = "user"
	SourceAgent = "agent"
)

// Renderer receives the state produced by every settle
type Renderer interface {
	Actuate(grid engine.GridSnapshot, status engine.Status)
	// ContinueGame clears any won or lost banner
	ContinueGame()
}

// GameStore is the persistence collaborator of a single game
type GameStore interface {
	// LoadGame returns nil when no game is stored
	LoadGame() (*engine.SavedGame, error)
	SaveGame(game *engine.SavedGame) error
	ClearGame() error
	BestScore() (int, error)
	RaiseBestScore(score int) (int, error)
}

// ControllerConfig wires a Controller to its collaborators
type ControllerConfig struct {
	ID        string
	Rules     engine.Rules
	Store     GameStore
	Player    agent.Worker
	Opponent  agent.Worker
	Renderers []Renderer
	// Rand drives tile spawns. A time-seeded source is used when nil.
	Rand    *rand.Rand
	Metrics *monitor.Metrics
}

// Controller owns one game. All state changes, user input and agent
// responses alike, happen on the goroutine running Run; the exported
// methods post events to it and wait for the outcome.
type Controller struct {
	id        string
	rules     engine.Rules
	store     GameStore
	coord     *agent.Coordinator
	renderers []Renderer
	rng       *rand.Rand
	metrics   *monitor.Metrics

	game      *engine.GameEngine
	waiting   bool
	bestScore int

	events  chan event
	stopped chan struct{}
	latest  atomic.Pointer[engine.Snapshot]
}

type event struct {
	apply func() (engine.MoveResult, error)
	reply chan outcome
}

type outcome struct {
	result   engine.MoveResult
	snapshot engine.Snapshot
	err      error
}

// NewController restores the stored game, or starts a fresh one, and
// renders it once. Nothing is processed until Run is called.
func NewController(cfg ControllerConfig) *Controller {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	store := cfg.Store
	if store == nil {
		store = StoreFor(NewMemoryPersistence(), cfg.ID)
	}

	c := &Controller{
		id:        cfg.ID,
		rules:     cfg.Rules,
		store:     store,
		coord:     agent.NewCoordinator(cfg.Player, cfg.Opponent, cfg.Metrics),
		renderers: cfg.Renderers,
		rng:       rng,
		metrics:   cfg.Metrics,
		events:    make(chan event),
		stopped:   make(chan struct{}),
	}
	c.setup()
	c.settle()
	return c
}

// ID returns the session identifier of the game
func (c *Controller) ID() string {
	return c.id
}

// Run processes events and agent responses until ctx is done. It must be
// called exactly once.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.coord.Run(ctx)
	})
	g.Go(func() error {
		return c.loop(ctx)
	})
	return g.Wait()
}

func (c *Controller) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			result, err := ev.apply()
			ev.reply <- outcome{result: result, snapshot: c.Snapshot(), err: err}
		case resp := <-c.coord.Responses():
			c.handleResponse(resp)
		}
	}
}

func (c *Controller) do(ctx context.Context, apply func() (engine.MoveResult, error)) (engine.MoveResult, engine.Snapshot, error) {
	ev := event{apply: apply, reply: make(chan outcome, 1)}
	select {
	case c.events <- ev:
	case <-c.stopped:
		return engine.MoveResult{}, engine.Snapshot{}, ErrControllerStopped
	case <-ctx.Done():
		return engine.MoveResult{}, engine.Snapshot{}, ctx.Err()
	}

	select {
	case out := <-ev.reply:
		return out.result, out.snapshot, out.err
	case <-ctx.Done():
		return engine.MoveResult{}, engine.Snapshot{}, ctx.Err()
	}
}

// Move slides the tiles in dir on behalf of the user
func (c *Controller) Move(ctx context.Context, dir engine.Direction) (engine.MoveResult, engine.Snapshot, error) {
	if !dir.Valid() {
		return engine.MoveResult{}, engine.Snapshot{}, fmt.Errorf("%w: %d", engine.ErrInvalidDirection, int(dir))
	}
	return c.do(ctx, func() (engine.MoveResult, error) {
		return c.move(dir, SourceUser), nil
	})
}

// Restart discards the game and starts a new epoch
func (c *Controller) Restart(ctx context.Context) (engine.Snapshot, error) {
	_, snap, err := c.do(ctx, func() (engine.MoveResult, error) {
		c.restart()
		return engine.MoveResult{}, nil
	})
	return snap, err
}

// KeepPlaying lets the game go on past the win value
func (c *Controller) KeepPlaying(ctx context.Context) (engine.Snapshot, error) {
	_, snap, err := c.do(ctx, func() (engine.MoveResult, error) {
		c.keepPlaying()
		return engine.MoveResult{}, nil
	})
	return snap, err
}

// SetPlayerAI toggles the player agent. Enabling it asks for a move at once.
func (c *Controller) SetPlayerAI(ctx context.Context, enabled bool) (engine.Snapshot, error) {
	_, snap, err := c.do(ctx, func() (engine.MoveResult, error) {
		return engine.MoveResult{}, c.setPlayerAI(enabled)
	})
	return snap, err
}

// SetOpponentAI toggles the opponent agent
func (c *Controller) SetOpponentAI(ctx context.Context, enabled bool) (engine.Snapshot, error) {
	_, snap, err := c.do(ctx, func() (engine.MoveResult, error) {
		return engine.MoveResult{}, c.setOpponentAI(enabled)
	})
	return snap, err
}

// Snapshot returns the last settled state. Safe for concurrent use.
func (c *Controller) Snapshot() engine.Snapshot {
	if snap := c.latest.Load(); snap != nil {
		return *snap
	}
	return engine.Snapshot{}
}

// The methods below run on the loop goroutine only.

func (c *Controller) setup() {
	saved, err := c.store.LoadGame()
	if err != nil {
		logger.Log.Warnw("Failed to load stored game, starting fresh", "session_id", c.id, "error", err)
	}
	if saved != nil {
		game, err := engine.NewEngineFromSaved(c.rules, saved, c.rng)
		if err == nil {
			c.game = game
			return
		}
		logger.Log.Warnw("Stored game is unusable, starting fresh", "session_id", c.id, "error", err)
	}
	c.newGame()
}

func (c *Controller) newGame() {
	c.game = engine.NewEngine(c.rules, c.rng)
	c.metrics.IncGamesStarted()
}

func (c *Controller) move(dir engine.Direction, source string) engine.MoveResult {
	if c.waiting || c.game.IsGameTerminated() {
		return engine.MoveResult{Direction: dir}
	}

	result := c.game.Move(dir)
	if !result.Moved {
		return result
	}
	c.metrics.IncMoves(source)
	c.metrics.AddMerges(len(result.Merges))

	if c.coord.ShouldConsultOpponent(len(c.game.Grid().AvailableCells())) && c.requestPlacement() {
		c.waiting = true
		c.settle()
		return result
	}

	if _, err := c.game.AddRandomTile(); err != nil {
		logger.Log.Warnw("Failed to spawn tile", "session_id", c.id, "error", err)
	}
	c.game.CheckGameOver()
	c.settle()
	c.requestPlayerMove()
	return result
}

func (c *Controller) requestPlacement() bool {
	board, err := agent.EncodeBoard(c.game.Grid())
	if err != nil {
		logger.Log.Warnw("Cannot consult opponent agent", "session_id", c.id, "error", err)
		return false
	}
	return c.coord.RequestOpponentPlacement(board)
}

func (c *Controller) requestPlayerMove() {
	if !c.coord.PlayerAI() {
		return
	}
	board, err := agent.EncodeBoard(c.game.Grid())
	if err != nil {
		logger.Log.Warnw("Cannot consult player agent", "session_id", c.id, "error", err)
		return
	}
	c.coord.RequestPlayerMove(board, c.waiting, c.game.IsGameTerminated())
}

func (c *Controller) handleResponse(resp agent.Response) {
	if !c.coord.Accept(resp) {
		return
	}

	switch resp.Kind {
	case agent.PlayerMove:
		if resp.Failed() {
			return
		}
		dir := engine.Direction(resp.Result)
		if !dir.Valid() {
			c.metrics.IncMalformedResults()
			logger.Log.Warnw("Ignoring malformed player move", "session_id", c.id, "result", resp.Result)
			return
		}
		c.move(dir, SourceAgent)

	case agent.OpponentPlacement:
		c.placeOpponentTile(resp)
	}
}

func (c *Controller) placeOpponentTile(resp agent.Response) {
	if !c.waiting {
		logger.Log.Debugw("Ignoring opponent placement while not waiting", "session_id", c.id, "game_id", resp.GameID)
		return
	}

	grid := c.game.Grid()
	pos, ok := agent.PlacementPosition(resp.Result)
	if resp.Failed() || !ok || !grid.CellAvailable(pos) {
		if !resp.Failed() {
			c.metrics.IncMalformedResults()
			logger.Log.Warnw("Malformed opponent placement, using a random cell",
				"session_id", c.id, "result", resp.Result, "trace_id", resp.TraceID)
		}
		if _, err := c.game.AddRandomTile(); err != nil {
			logger.Log.Warnw("Failed to place opponent tile", "session_id", c.id, "error", err)
		}
	} else if _, err := c.game.AddTileAt(pos); err != nil {
		logger.Log.Warnw("Failed to place opponent tile", "session_id", c.id, "error", err)
	}

	c.waiting = false
	c.game.CheckGameOver()
	c.settle()
	c.requestPlayerMove()
}

func (c *Controller) restart() {
	c.coord.NewGame()
	c.waiting = false
	if err := c.store.ClearGame(); err != nil {
		logger.Log.Warnw("Failed to clear stored game", "session_id", c.id, "error", err)
	}
	c.continueGame()
	c.newGame()
	c.settle()
	c.requestPlayerMove()
	logger.Log.Infow("Game restarted", "session_id", c.id, "game_id", c.coord.GameID())
}

func (c *Controller) keepPlaying() {
	c.game.ContinueAfterWin()
	c.continueGame()
	c.settle()
	c.requestPlayerMove()
}

func (c *Controller) setPlayerAI(enabled bool) error {
	if enabled && c.rules.Size != agent.BoardSize {
		return ErrAgentsUnsupported
	}
	c.coord.SetPlayerAI(enabled)
	c.settle()
	if enabled {
		c.requestPlayerMove()
	}
	return nil
}

func (c *Controller) setOpponentAI(enabled bool) error {
	if enabled && c.rules.Size != agent.BoardSize {
		return ErrAgentsUnsupported
	}
	c.coord.SetOpponentAI(enabled)
	c.settle()
	return nil
}

func (c *Controller) continueGame() {
	for _, r := range c.renderers {
		r.ContinueGame()
	}
}

// settle persists the best score and the game, then renders
func (c *Controller) settle() {
	best, err := c.store.BestScore()
	if err != nil {
		logger.Log.Warnw("Failed to read best score", "session_id", c.id, "error", err)
		best = c.bestScore
	}
	if score := c.game.Score(); best < score {
		raised, err := c.store.RaiseBestScore(score)
		if err != nil {
			logger.Log.Warnw("Failed to store best score", "session_id", c.id, "error", err)
			raised = score
		}
		best = max(raised, score)
	}
	c.bestScore = best

	if c.game.IsOver() {
		err = c.store.ClearGame()
	} else {
		err = c.store.SaveGame(c.game.Serialize())
	}
	if err != nil {
		logger.Log.Warnw("Failed to store game", "session_id", c.id, "error", err)
	}

	snap := engine.Snapshot{
		Grid: c.game.Grid().Snapshot(),
		Status: engine.Status{
			Score:       c.game.Score(),
			Over:        c.game.IsOver(),
			Won:         c.game.IsWon(),
			BestScore:   best,
			Terminated:  c.game.IsGameTerminated(),
			KeepPlaying: c.game.KeepPlaying(),
			Waiting:     c.waiting,
			GameID:      c.coord.GameID(),
			PlayerAI:    c.coord.PlayerAI(),
			OpponentAI:  c.coord.OpponentAI(),
		},
	}
	c.latest.Store(&snap)

	for _, r := range c.renderers {
		r.Actuate(snap.Grid, snap.Status)
	}
}
