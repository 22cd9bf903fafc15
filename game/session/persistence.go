package session

import (
	"errors"
	"time"

	"github.com/wricardo/duel2048/game/engine"
)

// Persistence stores session records, their games and the best score
// shared by all sessions. Implementations must be safe for concurrent use.
type Persistence interface {
	// SaveSession upserts the session metadata, keeping any stored game
	SaveSession(rec *Record) error

	// LoadSession returns ErrSessionNotFound for unknown IDs
	LoadSession(id string) (*Record, error)

	// DeleteSession removes the session and its game
	DeleteSession(id string) error

	// ListSessions returns all persisted session IDs
	ListSessions() ([]string, error)

	// SessionExists checks if a session exists in storage
	SessionExists(id string) bool

	// SaveGame stores the game of a session, creating the record if needed
	SaveGame(id string, game *engine.SavedGame) error

	// ClearGame forgets the game of a session but keeps its metadata
	ClearGame(id string) error

	BestScore() (int, error)

	// RaiseBestScore stores score if it beats the best score and returns
	// the best score after the update. It never lowers the stored value.
	RaiseBestScore(score int) (int, error)
}

// Record is the persisted form of a session
type Record struct {
	ID             string            `json:"id"`
	ConfigName     string            `json:"config_name"`
	Variant        engine.Variant    `json:"variant"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	Game           *engine.SavedGame `json:"game_state,omitempty"`
}

// sessionStore binds a Persistence to one session ID
type sessionStore struct {
	p  Persistence
	id string
}

// StoreFor returns the GameStore of session id backed by p
func StoreFor(p Persistence, id string) GameStore {
	return &sessionStore{p: p, id: id}
}

func (s *sessionStore) LoadGame() (*engine.SavedGame, error) {
	rec, err := s.p.LoadSession(s.id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Game, nil
}

func (s *sessionStore) SaveGame(game *engine.SavedGame) error {
	return s.p.SaveGame(s.id, game)
}

func (s *sessionStore) ClearGame() error {
	return s.p.ClearGame(s.id)
}

func (s *sessionStore) BestScore() (int, error) {
	return s.p.BestScore()
}

func (s *sessionStore) RaiseBestScore(score int) (int, error) {
	return s.p.RaiseBestScore(score)
}
