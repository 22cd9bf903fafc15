package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wricardo/duel2048/game/agent"
	"github.com/wricardo/duel2048/game/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testID = "test"

// savedFromRows builds a saved game from a row-major layout (rows[y][x])
func savedFromRows(rows [][]int) *engine.SavedGame {
	size := len(rows)
	cells := make([][]*engine.SerializedTile, size)
	for x := range cells {
		cells[x] = make([]*engine.SerializedTile, size)
	}
	for y, row := range rows {
		for x, v := range row {
			if v != 0 {
				cells[x][y] = &engine.SerializedTile{Position: engine.Position{X: x, Y: y}, Value: v}
			}
		}
	}
	return &engine.SavedGame{Grid: engine.SerializedGrid{Size: size, Cells: cells}}
}

// workerFunc adapts a function to agent.Worker
type workerFunc func(ctx context.Context, req agent.Request) (agent.Response, error)

func (f workerFunc) Decide(ctx context.Context, req agent.Request) (agent.Response, error) {
	return f(ctx, req)
}

func answer(result int) agent.Worker {
	return workerFunc(func(_ context.Context, req agent.Request) (agent.Response, error) {
		return agent.Response{GameID: req.GameID, Kind: req.Kind, Result: result, TraceID: req.TraceID}, nil
	})
}

// gated answers with result once release is closed
func gated(result int, release <-chan struct{}) agent.Worker {
	return workerFunc(func(ctx context.Context, req agent.Request) (agent.Response, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return agent.Response{}, ctx.Err()
		}
		return agent.Response{GameID: req.GameID, Kind: req.Kind, Result: result, TraceID: req.TraceID}, nil
	})
}

type recordingRenderer struct {
	mu        sync.Mutex
	actuated  []engine.Status
	continues int
}

func (r *recordingRenderer) Actuate(_ engine.GridSnapshot, status engine.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actuated = append(r.actuated, status)
}

func (r *recordingRenderer) ContinueGame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.continues++
}

func (r *recordingRenderer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actuated), r.continues
}

type fixture struct {
	ctrl     *Controller
	store    *MemoryPersistence
	renderer *recordingRenderer
}

// newFixture builds a controller over rows (nil for a fresh game) and runs
// it until the test ends
func newFixture(t *testing.T, rows [][]int, player, opponent agent.Worker) *fixture {
	t.Helper()

	store := NewMemoryPersistence()
	rules := engine.DefaultRules()
	if rows != nil {
		rules.Size = len(rows)
		require.NoError(t, store.SaveGame(testID, savedFromRows(rows)))
	}
	if player == nil {
		player = answer(0)
	}
	if opponent == nil {
		opponent = answer(0)
	}

	f := &fixture{store: store, renderer: &recordingRenderer{}}
	f.ctrl = NewController(ControllerConfig{
		ID:        testID,
		Rules:     rules,
		Store:     StoreFor(store, testID),
		Player:    player,
		Opponent:  opponent,
		Renderers: []Renderer{f.renderer},
		Rand:      rand.New(rand.NewPCG(1, 2)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return f
}

func tileCount(snap engine.Snapshot) int {
	return len(snap.Grid.Tiles)
}

func TestController_RestoresStoredGame(t *testing.T) {
	rows := [][]int{
		{2, 0, 0, 0},
		{0, 4, 0, 0},
		{0, 0, 8, 0},
		{0, 0, 0, 16},
	}
	f := newFixture(t, rows, nil, nil)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, rows, snap.Grid.Values)
	assert.Equal(t, int64(1), snap.Status.GameID)
	assert.False(t, snap.Status.PlayerAI)

	actuated, _ := f.renderer.counts()
	assert.Equal(t, 1, actuated, "construction renders once")
}

func TestController_UnusableStoreStartsFresh(t *testing.T) {
	// A 2x2 game under 4x4 rules cannot be restored
	store := NewMemoryPersistence()
	require.NoError(t, store.SaveGame(testID, savedFromRows([][]int{{2, 0}, {0, 0}})))

	ctrl := NewController(ControllerConfig{ID: testID, Rules: engine.DefaultRules(), Store: StoreFor(store, testID)})
	snap := ctrl.Snapshot()
	assert.Equal(t, 4, snap.Grid.Size)
	assert.Equal(t, engine.DefaultStartTiles, tileCount(snap))

	// The fresh game replaced the unusable one
	rec, err := store.LoadSession(testID)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Game.Grid.Size)
}

type failingStore struct{ GameStore }

func (failingStore) LoadGame() (*engine.SavedGame, error) { return nil, errors.New("disk on fire") }
func (failingStore) SaveGame(*engine.SavedGame) error     { return errors.New("disk on fire") }
func (failingStore) ClearGame() error                     { return errors.New("disk on fire") }
func (failingStore) BestScore() (int, error)              { return 0, errors.New("disk on fire") }
func (failingStore) RaiseBestScore(int) (int, error)      { return 0, errors.New("disk on fire") }

// staleBestStore reports the best score as it was before other sessions
// stored theirs
type staleBestStore struct{ GameStore }

func (staleBestStore) BestScore() (int, error) { return 0, nil }

func TestController_BestScoreNeverDrops(t *testing.T) {
	store := NewMemoryPersistence()
	start := func(id string, rows [][]int, wrap func(GameStore) GameStore) *Controller {
		require.NoError(t, store.SaveGame(id, savedFromRows(rows)))
		ctrl := NewController(ControllerConfig{
			ID:    id,
			Rules: engine.DefaultRules(),
			Store: wrap(StoreFor(store, id)),
			Rand:  rand.New(rand.NewPCG(1, 2)),
		})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = ctrl.Run(ctx)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
		return ctrl
	}
	same := func(s GameStore) GameStore { return s }
	stale := func(s GameStore) GameStore { return staleBestStore{s} }

	high := start("a", [][]int{
		{64, 64, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, same)
	low := start("b", [][]int{
		{2, 2, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, stale)
	ctx := context.Background()

	_, snap, err := high.Move(ctx, engine.Left)
	require.NoError(t, err)
	require.Equal(t, 128, snap.Status.Score)

	// b read the best score before a stored 128
	_, snap, err = low.Move(ctx, engine.Left)
	require.NoError(t, err)
	require.Equal(t, 4, snap.Status.Score)
	assert.Equal(t, 128, snap.Status.BestScore)

	best, err := store.BestScore()
	require.NoError(t, err)
	assert.Equal(t, 128, best, "a lower score never replaces the best score")
}

func TestController_StoreErrorsAreNotFatal(t *testing.T) {
	ctrl := NewController(ControllerConfig{ID: testID, Rules: engine.DefaultRules(), Store: failingStore{}})
	assert.Equal(t, engine.DefaultStartTiles, tileCount(ctrl.Snapshot()))
}

func TestController_UserMoveSpawnsTile(t *testing.T) {
	f := newFixture(t, [][]int{
		{2, 0, 0, 2},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, nil, nil)

	result, snap, err := f.ctrl.Move(context.Background(), engine.Left)
	require.NoError(t, err)
	assert.True(t, result.Moved)
	assert.Equal(t, 4, result.ScoreDelta)
	assert.Equal(t, 4, snap.Grid.Values[0][0])
	assert.Equal(t, 2, tileCount(snap), "merged tile plus one spawn")
	assert.Equal(t, 4, snap.Status.Score)
	assert.Equal(t, 4, snap.Status.BestScore)

	best, err := f.store.BestScore()
	require.NoError(t, err)
	assert.Equal(t, 4, best)

	rec, err := f.store.LoadSession(testID)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Game.Score, "every settle persists the game")
}

func TestController_NoOpMove(t *testing.T) {
	f := newFixture(t, [][]int{
		{2, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, nil, nil)

	result, snap, err := f.ctrl.Move(context.Background(), engine.Left)
	require.NoError(t, err)
	assert.False(t, result.Moved)
	assert.Equal(t, 1, tileCount(snap), "no spawn after a no-op move")

	_, _, err = f.ctrl.Move(context.Background(), engine.Direction(7))
	assert.ErrorIs(t, err, engine.ErrInvalidDirection)
}

func TestController_OpponentPlacesTile(t *testing.T) {
	release := make(chan struct{})
	// Slot 0 is the bottom-right cell
	f := newFixture(t, [][]int{
		{2, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, nil, gated(0, release))
	ctx := context.Background()

	snap, err := f.ctrl.SetOpponentAI(ctx, true)
	require.NoError(t, err)
	assert.True(t, snap.Status.OpponentAI)

	result, snap, err := f.ctrl.Move(ctx, engine.Down)
	require.NoError(t, err)
	require.True(t, result.Moved)
	assert.True(t, snap.Status.Waiting)
	assert.Equal(t, 1, tileCount(snap), "no random spawn while the opponent decides")

	result, snap, err = f.ctrl.Move(ctx, engine.Up)
	require.NoError(t, err)
	assert.False(t, result.Moved, "user input is ignored while waiting")
	assert.Equal(t, 2, snap.Grid.Values[3][0])

	close(release)
	require.Eventually(t, func() bool {
		return !f.ctrl.Snapshot().Status.Waiting
	}, 5*time.Second, 10*time.Millisecond)

	snap = f.ctrl.Snapshot()
	assert.Equal(t, 2, tileCount(snap))
	assert.NotZero(t, snap.Grid.Values[3][3])
}

func TestController_MalformedPlacementFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		result int
	}{
		{"out of range", 99},
		// Slot 12 is the top-right cell, where the move lands a tile
		{"occupied cell", 12},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t, [][]int{
				{2, 0, 0, 0},
				{4, 0, 0, 0},
				{0, 0, 0, 0},
				{0, 0, 0, 0},
			}, nil, answer(test.result))
			ctx := context.Background()

			_, err := f.ctrl.SetOpponentAI(ctx, true)
			require.NoError(t, err)
			result, _, err := f.ctrl.Move(ctx, engine.Right)
			require.NoError(t, err)
			require.True(t, result.Moved)

			require.Eventually(t, func() bool {
				return !f.ctrl.Snapshot().Status.Waiting
			}, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, 3, tileCount(f.ctrl.Snapshot()), "a random cell was used instead")
		})
	}
}

func TestController_LastEmptyCellIsFilledDirectly(t *testing.T) {
	var calls atomic.Int32
	opponent := workerFunc(func(_ context.Context, req agent.Request) (agent.Response, error) {
		calls.Add(1)
		return agent.Response{GameID: req.GameID, Kind: req.Kind}, nil
	})

	// Only the bottom row can slide; afterwards one cell is empty and no
	// spawn there can merge with a neighbour
	f := newFixture(t, [][]int{
		{2, 4, 2, 4},
		{4, 2, 4, 2},
		{8, 4, 2, 4},
		{16, 32, 16, 0},
	}, nil, opponent)
	ctx := context.Background()

	_, err := f.ctrl.SetOpponentAI(ctx, true)
	require.NoError(t, err)

	result, snap, err := f.ctrl.Move(ctx, engine.Right)
	require.NoError(t, err)
	require.True(t, result.Moved)
	assert.False(t, snap.Status.Waiting)
	assert.Equal(t, 16, tileCount(snap))
	assert.True(t, snap.Status.Over)
	assert.True(t, snap.Status.Terminated)
	assert.Zero(t, calls.Load())

	rec, err := f.store.LoadSession(testID)
	require.NoError(t, err)
	assert.Nil(t, rec.Game, "a finished game is cleared from the store")

	result, _, err = f.ctrl.Move(ctx, engine.Left)
	require.NoError(t, err)
	assert.False(t, result.Moved, "moves are ignored once the game is over")
}

func TestController_WinAndKeepPlaying(t *testing.T) {
	f := newFixture(t, [][]int{
		{1024, 1024, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, nil, nil)
	ctx := context.Background()

	result, snap, err := f.ctrl.Move(ctx, engine.Left)
	require.NoError(t, err)
	assert.True(t, result.Won)
	assert.True(t, snap.Status.Won)
	assert.False(t, snap.Status.Over)
	assert.False(t, snap.Status.Terminated, "winning does not terminate the game")
	assert.False(t, snap.Status.KeepPlaying)

	result, snap, err = f.ctrl.Move(ctx, engine.Right)
	require.NoError(t, err)
	assert.True(t, result.Moved, "a won game still accepts moves")
	assert.True(t, snap.Status.Won, "won stays set")

	snap, err = f.ctrl.KeepPlaying(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Status.Won)
	assert.True(t, snap.Status.KeepPlaying)
	assert.False(t, snap.Status.Terminated)

	_, continues := f.renderer.counts()
	assert.Equal(t, 1, continues)
}

func TestController_PlayerAIPlaysOnAfterWin(t *testing.T) {
	var requests atomic.Int32
	// Alternate left and right so every answer moves the 2048 tile
	player := workerFunc(func(_ context.Context, req agent.Request) (agent.Response, error) {
		dir := engine.Left
		if requests.Add(1)%2 == 0 {
			dir = engine.Right
		}
		return agent.Response{GameID: req.GameID, Kind: req.Kind, Result: int(dir), TraceID: req.TraceID}, nil
	})
	f := newFixture(t, [][]int{
		{1024, 1024, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, player, nil)
	ctx := context.Background()

	_, err := f.ctrl.SetPlayerAI(ctx, true)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return requests.Load() >= 3
	}, 5*time.Second, 10*time.Millisecond, "the agent keeps being asked after the win")

	_, err = f.ctrl.SetPlayerAI(ctx, false)
	require.NoError(t, err)
	snap := f.ctrl.Snapshot()
	assert.True(t, snap.Status.Won)
	assert.False(t, snap.Status.KeepPlaying, "no keep playing was needed")
}

func TestController_Restart(t *testing.T) {
	f := newFixture(t, [][]int{
		{1024, 1024, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, nil, nil)
	ctx := context.Background()

	_, _, err := f.ctrl.Move(ctx, engine.Left)
	require.NoError(t, err)

	snap, err := f.ctrl.Restart(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Status.GameID)
	assert.Zero(t, snap.Status.Score)
	assert.False(t, snap.Status.Won)
	assert.Equal(t, 2048, snap.Status.BestScore, "best score survives a restart")
	assert.Equal(t, engine.DefaultStartTiles, tileCount(snap))

	_, continues := f.renderer.counts()
	assert.Equal(t, 1, continues)
}

func TestController_StaleResponseAfterRestart(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, nil, gated(int(engine.Left), release), nil)
	ctx := context.Background()

	_, err := f.ctrl.SetPlayerAI(ctx, true)
	require.NoError(t, err)
	_, err = f.ctrl.SetPlayerAI(ctx, false)
	require.NoError(t, err)

	restarted, err := f.ctrl.Restart(ctx)
	require.NoError(t, err)
	close(release)

	// The answer computed for game 1 must never touch game 2
	assert.Never(t, func() bool {
		snap := f.ctrl.Snapshot()
		return snap.Status.GameID != restarted.Status.GameID ||
			tileCount(snap) != tileCount(restarted)
	}, 300*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, restarted.Grid.Values, f.ctrl.Snapshot().Grid.Values)
}

func TestController_PlayerAIPlays(t *testing.T) {
	solver := agent.NewExpectimax(2)
	f := newFixture(t, nil, agent.NewLocalWorker(solver), agent.NewLocalWorker(solver))
	ctx := context.Background()

	_, err := f.ctrl.SetOpponentAI(ctx, true)
	require.NoError(t, err)
	snap, err := f.ctrl.SetPlayerAI(ctx, true)
	require.NoError(t, err)
	assert.True(t, snap.Status.PlayerAI)

	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().Status.Score > 0
	}, 10*time.Second, 10*time.Millisecond)

	// Turn it off so the test ends on a quiet controller
	_, err = f.ctrl.SetPlayerAI(ctx, false)
	require.NoError(t, err)
}

func TestController_AgentsNeedClassicBoard(t *testing.T) {
	f := newFixture(t, [][]int{
		{2, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0},
	}, nil, nil)
	ctx := context.Background()

	_, err := f.ctrl.SetPlayerAI(ctx, true)
	assert.ErrorIs(t, err, ErrAgentsUnsupported)
	_, err = f.ctrl.SetOpponentAI(ctx, true)
	assert.ErrorIs(t, err, ErrAgentsUnsupported)

	snap, err := f.ctrl.SetPlayerAI(ctx, false)
	require.NoError(t, err, "disabling is always allowed")
	assert.False(t, snap.Status.PlayerAI)
}

func TestController_Stopped(t *testing.T) {
	ctrl := NewController(ControllerConfig{ID: testID, Rules: engine.DefaultRules()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	_, _, err := ctrl.Move(context.Background(), engine.Up)
	assert.ErrorIs(t, err, ErrControllerStopped)

	// The last state stays readable
	assert.Equal(t, engine.DefaultStartTiles, tileCount(ctrl.Snapshot()))
}
