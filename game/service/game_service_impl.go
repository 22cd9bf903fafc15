package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wricardo/duel2048/game/engine"
)

var ErrConfigNotFound = errors.New("configuration not found")

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	// mu guards session creation and removal. Game operations are
	// serialized by each Game.
	mu sync.Mutex
}

// getConfigID returns the config_id for a given variant name, used for consistent API responses
func (s *gameServiceImpl) getConfigID(variantName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == variantName {
				return cfg.ConfigID
			}
		}
	}
	if variantName == "" {
		return "default"
	}
	return variantName
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
	}
}

func sessionInfo(sess *Session) *SessionInfo {
	snap := sess.Game.Snapshot()
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     sess.ConfigName,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		GameState:      &snap,
		GameConfig:     sess.Variant,
	}
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, configName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var variant *engine.Variant
	var err error
	if configName != "" {
		variant, err = s.configs.LoadConfig(configName)
		if err != nil {
			// Provide helpful error message with available options
			if errors.Is(err, ErrConfigNotFound) {
				availableConfigs, listErr := s.configs.ListConfigs()
				if listErr == nil && len(availableConfigs) > 0 {
					var configIDs []string
					for _, cfg := range availableConfigs {
						configIDs = append(configIDs, cfg.ConfigID)
					}
					return nil, fmt.Errorf("config '%s' not found. Available configs: %v: %w", configName, configIDs, err)
				}
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		variant = s.configs.GetDefault()
		configName = s.getConfigID(variant.Name)
	}

	// Let session manager generate the ID
	sess, err := s.sessions.Create("", configName, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sessionInfo(sess), nil
}

// lookup returns the session and marks it accessed
func (s *gameServiceImpl) lookup(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.Delete(sessionID)
}

// Move executes a single user move for a session
func (s *gameServiceImpl) Move(ctx context.Context, sessionID, direction string) (*MoveResult, error) {
	dir, err := engine.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	moved, snap, err := sess.Game.Move(ctx, dir)
	if err != nil {
		return nil, err
	}

	result := &MoveResult{
		Success:    moved.Moved,
		Direction:  dir.String(),
		ScoreDelta: moved.ScoreDelta,
		Merges:     len(moved.Merges),
		Won:        moved.Won,
		GameState:  &snap,
	}
	result.Message = moveMessage(moved, snap.Status)
	return result, nil
}

func moveMessage(moved engine.MoveResult, status engine.Status) string {
	switch {
	case moved.Won:
		return "You win!"
	case moved.Moved && status.Over:
		return "Game over!"
	case moved.Moved && status.Waiting:
		return "Waiting for the opponent to place a tile"
	case moved.Moved:
		return fmt.Sprintf("Moved %s", moved.Direction)
	case status.Waiting:
		return "Move ignored: waiting for the opponent"
	case status.Terminated:
		return "Move ignored: game is finished"
	default:
		return "Move ignored: nothing can slide that way"
	}
}

// Restart starts a new game in the session
func (s *gameServiceImpl) Restart(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	snap, err := sess.Game.Restart(ctx)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// KeepPlaying continues a won game
func (s *gameServiceImpl) KeepPlaying(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	snap, err := sess.Game.KeepPlaying(ctx)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetAI toggles the player and opponent agents
func (s *gameServiceImpl) SetAI(ctx context.Context, sessionID string, player, opponent *bool) (*engine.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	snap := sess.Game.Snapshot()
	if opponent != nil {
		if snap, err = sess.Game.SetOpponentAI(ctx, *opponent); err != nil {
			return nil, err
		}
	}
	if player != nil {
		if snap, err = sess.Game.SetPlayerAI(ctx, *player); err != nil {
			return nil, err
		}
	}
	return &snap, nil
}

// GetGameState returns the last settled state of the session
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	snap := sess.Game.Snapshot()
	return &snap, nil
}

// ListConfigs returns available variants
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific variant
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.Variant, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a variant
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, variant *engine.Variant) error {
	return s.configs.SaveConfig(configName, variant)
}
