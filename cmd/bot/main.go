// Command bot plays a session on a running server through the REST API,
// restarting until it reaches the win tile or runs out of attempts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/logger"
)

type botOptions struct {
	config       string
	resume       string
	maxMoves     int
	maxAttempts  int
	opponent     bool
	keepPlaying  bool
	delay        time.Duration
	pollInterval time.Duration
}

type attemptResult struct {
	Moves   int
	Score   int
	MaxTile int
	Won     bool
	Over    bool
}

func main() {
	cmd := &cli.Command{
		Name:  "bot",
		Usage: "play a session through the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "game server URL", Value: "http://localhost:8080"},
			&cli.StringFlag{Name: "config", Usage: "variant of a new session (classic, big, tiny, sprint)"},
			&cli.StringFlag{Name: "continue", Usage: "resume playing an existing session by ID"},
			&cli.IntFlag{Name: "max-moves", Usage: "maximum moves per attempt", Value: 5000},
			&cli.IntFlag{Name: "max-attempts", Usage: "maximum attempts before giving up", Value: 10},
			&cli.BoolFlag{Name: "opponent", Usage: "let the server's opponent agent place tiles", Value: true},
			&cli.BoolFlag{Name: "keep-playing", Usage: "keep playing after the win tile"},
			&cli.DurationFlag{Name: "delay", Usage: "delay between moves"},
			&cli.BoolFlag{Name: "v", Usage: "verbose output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger.Init(cmd.Bool("v"))
			defer logger.Sync()

			opts := botOptions{
				config:       cmd.String("config"),
				resume:       cmd.String("continue"),
				maxMoves:     cmd.Int("max-moves"),
				maxAttempts:  cmd.Int("max-attempts"),
				opponent:     cmd.Bool("opponent"),
				keepPlaying:  cmd.Bool("keep-playing"),
				delay:        cmd.Duration("delay"),
				pollInterval: 20 * time.Millisecond,
			}
			won, err := run(ctx, NewClient(cmd.String("url")), opts)
			if err != nil {
				return err
			}
			if !won {
				return cli.Exit("failed to win", 1)
			}
			return nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run opens the session and plays attempts until one wins
func run(ctx context.Context, c *Client, opts botOptions) (bool, error) {
	snap, err := openSession(ctx, c, opts)
	if err != nil {
		return false, err
	}
	logger.Log.Infow("Session ready", "session_id", c.SessionID(), "grid_size", snap.Grid.Size, "game_id", snap.Status.GameID)

	if _, err := c.SetOpponentAI(ctx, opts.opponent); err != nil {
		logger.Log.Warnw("Opponent agent unavailable, tiles spawn at random", "error", err)
	}

	for attempt := 1; attempt <= opts.maxAttempts; attempt++ {
		if attempt > 1 || snap.Status.Terminated {
			if snap, err = c.Restart(ctx); err != nil {
				return false, err
			}
		}

		result, err := playAttempt(ctx, c, opts)
		if err != nil {
			return false, err
		}
		logger.Log.Infow("Attempt finished",
			"attempt", attempt, "moves", result.Moves, "score", result.Score,
			"max_tile", result.MaxTile, "won", result.Won, "over", result.Over)

		if result.Won {
			logger.Log.Infow("🎉 Victory", "session_id", c.SessionID(), "attempt", attempt)
			return true, nil
		}
	}

	logger.Log.Infow("❌ Failed to win", "session_id", c.SessionID(), "attempts", opts.maxAttempts)
	return false, nil
}

func openSession(ctx context.Context, c *Client, opts botOptions) (*engine.Snapshot, error) {
	if opts.resume != "" {
		snap, err := c.Resume(ctx, opts.resume)
		if err == nil {
			return snap, nil
		}
		logger.Log.Warnw("Failed to resume session, creating a new one", "session_id", opts.resume, "error", err)
	}
	snap, err := c.CreateSession(ctx, opts.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return snap, nil
}

var errStuck = errors.New("no direction moves but the game is not over")

// playAttempt plays the current game until it ends, is won or runs out of moves
func playAttempt(ctx context.Context, c *Client, opts botOptions) (attemptResult, error) {
	var result attemptResult
	strategy := NewCornerStrategy()

	// finished records snap and reports whether the attempt is over
	finished := func(snap *engine.Snapshot) (bool, error) {
		if snap == nil {
			return false, nil
		}
		result.Score = snap.Status.Score
		result.MaxTile = max(result.MaxTile, largestTile(snap.Grid))
		result.Won = result.Won || snap.Status.Won
		result.Over = snap.Status.Over
		if result.Over {
			return true, nil
		}
		if snap.Status.Won && !snap.Status.KeepPlaying {
			if !opts.keepPlaying {
				return true, nil
			}
			if _, err := c.KeepPlaying(ctx); err != nil {
				return true, err
			}
		}
		return false, nil
	}

	for result.Moves < opts.maxMoves {
		dir, ok := strategy.Next()
		if !ok {
			snap, err := c.GetState(ctx)
			if err != nil {
				return result, err
			}
			if done, err := finished(snap); done || err != nil {
				return result, err
			}
			if !snap.Status.Waiting {
				return result, errStuck
			}
			strategy.Reset()
			if err := sleep(ctx, opts.pollInterval); err != nil {
				return result, err
			}
			continue
		}

		moved, err := c.Move(ctx, dir)
		if err != nil {
			return result, err
		}
		if done, err := finished(moved.GameState); done || err != nil {
			return result, err
		}

		switch {
		case moved.Success:
			result.Moves++
			strategy.Reset()
			logger.Log.Debugw("Moved", "direction", dir, "score", result.Score)
			if err := sleep(ctx, opts.delay); err != nil {
				return result, err
			}
		case moved.GameState != nil && moved.GameState.Status.Waiting:
			if err := sleep(ctx, opts.pollInterval); err != nil {
				return result, err
			}
		default:
			strategy.Reject(dir)
		}
	}
	return result, nil
}

func largestTile(grid engine.GridSnapshot) int {
	largest := 0
	for _, row := range grid.Values {
		for _, v := range row {
			largest = max(largest, v)
		}
	}
	return largest
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
