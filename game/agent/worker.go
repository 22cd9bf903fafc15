package agent

import (
	"context"
	"fmt"
)

// Worker answers decision requests. Implementations may block for as long
// as the decision takes and should return early when ctx is done.
type Worker interface {
	Decide(ctx context.Context, req Request) (Response, error)
}

// Solve runs one request against s
func Solve(s Solver, req Request) (Response, error) {
	resp := Response{GameID: req.GameID, Kind: req.Kind, TraceID: req.TraceID}
	switch req.Kind {
	case PlayerMove:
		resp.Result = s.NextMove(req.Board)
	case OpponentPlacement:
		resp.Result = s.NextPlacement(req.Board)
	default:
		return Response{}, fmt.Errorf("%w: %d", ErrUnknownKind, int(req.Kind))
	}
	return resp, nil
}

// LocalWorker runs a Solver on the caller's goroutine
type LocalWorker struct {
	Solver Solver
}

// NewLocalWorker wraps s
func NewLocalWorker(s Solver) *LocalWorker {
	return &LocalWorker{Solver: s}
}

func (w *LocalWorker) Decide(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return Solve(w.Solver, req)
}
