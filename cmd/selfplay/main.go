// Command selfplay plays headless games in which the player agent moves and
// the opponent agent (or chance) places the tiles, then prints the score and
// largest-tile distribution. It drives the same Controller the server uses.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/duel2048/game/agent"
	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/session"
	"github.com/wricardo/duel2048/logger"
)

type options struct {
	games       int
	maxDepth    int
	maxMoves    int
	seed        uint64
	opponent    bool
	keepPlaying bool
	timeout     time.Duration
}

type gameResult struct {
	Score    int
	MaxTile  int
	Moves    int64
	Won      bool
	Duration time.Duration
}

func main() {
	cmd := &cli.Command{
		Name:  "selfplay",
		Usage: "benchmark the built-in agents against each other",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "games", Usage: "number of games", Value: 10},
			&cli.IntFlag{Name: "max-depth", Usage: "cap on the search depth (0 = adaptive)"},
			&cli.IntFlag{Name: "max-moves", Usage: "stop a game after this many moves (0 = play to the end)"},
			&cli.Uint64Flag{Name: "seed", Usage: "seed of the first game, later games use seed+i"},
			&cli.BoolFlag{Name: "opponent", Usage: "let the opponent agent place tiles", Value: true},
			&cli.BoolFlag{Name: "keep-playing", Usage: "keep playing after reaching the win tile", Value: true},
			&cli.DurationFlag{Name: "timeout", Usage: "give up on a game after this long", Value: 10 * time.Minute},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("debug") {
				logger.Init(true)
				defer logger.Sync()
			}
			opts := options{
				games:       cmd.Int("games"),
				maxDepth:    cmd.Int("max-depth"),
				maxMoves:    cmd.Int("max-moves"),
				seed:        cmd.Uint64("seed"),
				opponent:    cmd.Bool("opponent"),
				keepPlaying: cmd.Bool("keep-playing"),
				timeout:     cmd.Duration("timeout"),
			}
			if opts.seed == 0 {
				opts.seed = uint64(time.Now().UnixNano())
			}
			results, err := run(ctx, opts, os.Stdout)
			if err != nil {
				return err
			}
			summarize(os.Stdout, results)
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) ([]gameResult, error) {
	solver := agent.NewExpectimax(opts.maxDepth)
	results := make([]gameResult, 0, opts.games)
	for i := 0; i < opts.games; i++ {
		result, err := playGame(ctx, solver, opts, opts.seed+uint64(i))
		if err != nil {
			return results, fmt.Errorf("game %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "game %3d: score %7d  max tile %6d  moves %5d  %s\n",
			i+1, result.Score, result.MaxTile, result.Moves, result.Duration.Round(time.Millisecond))
		results = append(results, result)
	}
	return results, nil
}

// countingWorker counts player decisions and reports when limit is reached
type countingWorker struct {
	agent.Worker
	n       atomic.Int64
	limit   int64
	reached func()
}

func (w *countingWorker) Decide(ctx context.Context, req agent.Request) (agent.Response, error) {
	resp, err := w.Worker.Decide(ctx, req)
	if err == nil && w.n.Add(1) == w.limit {
		w.reached()
	}
	return resp, err
}

// finishWatcher signals once a render shows a finished game
type finishWatcher struct {
	keepPlaying bool
	once        sync.Once
	done        chan struct{}
}

func (w *finishWatcher) Actuate(_ engine.GridSnapshot, status engine.Status) {
	if status.Over || (status.Won && !w.keepPlaying) {
		w.finish()
	}
}

func (w *finishWatcher) ContinueGame() {}

func (w *finishWatcher) finish() {
	w.once.Do(func() { close(w.done) })
}

func playGame(ctx context.Context, solver agent.Solver, opts options, seed uint64) (gameResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	watcher := &finishWatcher{keepPlaying: opts.keepPlaying, done: make(chan struct{})}
	player := &countingWorker{Worker: agent.NewLocalWorker(solver), limit: int64(opts.maxMoves), reached: watcher.finish}

	ctrl := session.NewController(session.ControllerConfig{
		ID:        fmt.Sprintf("selfplay-%d", seed),
		Rules:     engine.DefaultRules(),
		Player:    player,
		Opponent:  agent.NewLocalWorker(solver),
		Renderers: []session.Renderer{watcher},
		Rand:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	})

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(runCtx) }()
	defer func() {
		stop()
		<-done
	}()

	start := time.Now()
	if _, err := ctrl.SetOpponentAI(ctx, opts.opponent); err != nil {
		return gameResult{}, err
	}
	if opts.keepPlaying {
		if _, err := ctrl.KeepPlaying(ctx); err != nil {
			return gameResult{}, err
		}
	}
	if _, err := ctrl.SetPlayerAI(ctx, true); err != nil {
		return gameResult{}, err
	}

	select {
	case <-watcher.done:
	case <-ctx.Done():
		return gameResult{}, ctx.Err()
	}

	snap, err := ctrl.SetPlayerAI(ctx, false)
	if err != nil {
		return gameResult{}, err
	}
	return gameResult{
		Score:    snap.Status.Score,
		MaxTile:  maxTile(snap.Grid),
		Moves:    player.n.Load(),
		Won:      snap.Status.Won,
		Duration: time.Since(start),
	}, nil
}

func maxTile(grid engine.GridSnapshot) int {
	largest := 0
	for _, row := range grid.Values {
		for _, v := range row {
			largest = max(largest, v)
		}
	}
	return largest
}

// summarize prints score statistics and the share of games reaching each
// largest tile
func summarize(out io.Writer, results []gameResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "no games played")
		return
	}

	var total, best, wins int
	counts := make(map[int]int)
	for _, r := range results {
		total += r.Score
		best = max(best, r.Score)
		counts[r.MaxTile]++
		if r.Won {
			wins++
		}
	}

	tiles := make([]int, 0, len(counts))
	for tile := range counts {
		tiles = append(tiles, tile)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(tiles)))

	n := len(results)
	fmt.Fprintf(out, "\ngames: %d  wins: %d  mean score: %d  best score: %d\n", n, wins, total/n, best)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "max tile\tgames\tshare\treached\t")
	reached := 0
	for _, tile := range tiles {
		reached += counts[tile]
		fmt.Fprintf(w, "%d\t%d\t%.1f%%\t%.1f%%\t\n",
			tile, counts[tile], 100*float64(counts[tile])/float64(n), 100*float64(reached)/float64(n))
	}
	w.Flush()
}
