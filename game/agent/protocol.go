package agent

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedBoard = errors.New("board not supported by agents")
	ErrQueueFull        = errors.New("agent request queue full")
	ErrUnknownKind      = errors.New("unknown request kind")
)

// Kind tells an agent which decision is requested
type Kind int

const (
	PlayerMove Kind = iota
	OpponentPlacement
)

// Kinds lists the request kinds in protocol order
var Kinds = [2]Kind{PlayerMove, OpponentPlacement}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == PlayerMove || k == OpponentPlacement
}

func (k Kind) String() string {
	switch k {
	case PlayerMove:
		return "player"
	case OpponentPlacement:
		return "opponent"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Request asks an agent for one decision on a board
type Request struct {
	GameID  int64         `json:"game_id"`
	Kind    Kind          `json:"kind"`
	Board   BoardEncoding `json:"board"`
	TraceID string        `json:"trace_id,omitempty"`
}

// Response carries an agent's decision. Err is set when the worker failed
// to produce one; Result is then meaningless.
type Response struct {
	GameID  int64  `json:"game_id"`
	Kind    Kind   `json:"kind"`
	Result  int    `json:"result"`
	TraceID string `json:"trace_id,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Failed reports whether the worker could not produce a decision
func (r Response) Failed() bool {
	return r.Err != ""
}
