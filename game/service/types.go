package service

import (
	"time"

	"github.com/wricardo/duel2048/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string           `json:"id"`
	ConfigName     string           `json:"config_name"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	GameState      *engine.Snapshot `json:"game_state"`
	GameConfig     *engine.Variant  `json:"game_config"`
}

// MoveResult contains the result of a move operation
type MoveResult struct {
	Success    bool             `json:"success"`
	Direction  string           `json:"direction"`
	ScoreDelta int              `json:"score_delta"`
	Merges     int              `json:"merges"`
	Won        bool             `json:"won,omitempty"`
	GameState  *engine.Snapshot `json:"game_state"`
	Message    string           `json:"message"`
}

// ConfigInfo provides information about a game variant
type ConfigInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"` // The identifier to use for session creation
	Name        string `json:"name"`      // Display name
	Description string `json:"description"`
	GridSize    int    `json:"grid_size"`
	WinValue    int    `json:"win_value"`
}
