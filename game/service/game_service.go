package service

import (
	"context"
	"time"

	"github.com/wricardo/duel2048/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Game Operations
	Move(ctx context.Context, sessionID, direction string) (*MoveResult, error)
	Restart(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	KeepPlaying(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	// SetAI toggles the agents; a nil flag leaves that agent unchanged
	SetAI(ctx context.Context, sessionID string, player, opponent *bool) (*engine.Snapshot, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.Variant, error)
	SaveConfig(ctx context.Context, configName string, variant *engine.Variant) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, configName string, variant *engine.Variant) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id, configName string, variant *engine.Variant) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
}

// ConfigManager handles variant loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.Variant, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.Variant
	SaveConfig(name string, variant *engine.Variant) error
}

// Game is a running game. Implementations serialize all calls.
type Game interface {
	Move(ctx context.Context, dir engine.Direction) (engine.MoveResult, engine.Snapshot, error)
	Restart(ctx context.Context) (engine.Snapshot, error)
	KeepPlaying(ctx context.Context) (engine.Snapshot, error)
	SetPlayerAI(ctx context.Context, enabled bool) (engine.Snapshot, error)
	SetOpponentAI(ctx context.Context, enabled bool) (engine.Snapshot, error)
	Snapshot() engine.Snapshot
}

// Session represents an active game session
type Session struct {
	ID             string
	ConfigName     string
	Variant        *engine.Variant
	Game           Game
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
