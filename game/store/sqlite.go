package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/session"
)

const bestScoreKey = "best_score"

// SQLite implements session.Persistence on a local SQLite database
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLite opens (and creates if needed) the database at path
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite away from SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initialize() error {
	sessionTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		config_name TEXT NOT NULL DEFAULT '',
		variant TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL DEFAULT 0,
		last_accessed_at INTEGER NOT NULL DEFAULT 0,
		game TEXT
	);
	`
	metaTable := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	for _, table := range []string{sessionTable, metaTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) SaveSession(rec *session.Record) error {
	variant, err := json.Marshal(rec.Variant)
	if err != nil {
		return fmt.Errorf("failed to marshal variant: %w", err)
	}
	game, err := marshalGame(rec.Game)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
	INSERT INTO sessions (id, config_name, variant, created_at, last_accessed_at, game)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		config_name = excluded.config_name,
		variant = excluded.variant,
		created_at = excluded.created_at,
		last_accessed_at = excluded.last_accessed_at,
		game = COALESCE(excluded.game, sessions.game)
	`, rec.ID, rec.ConfigName, string(variant), rec.CreatedAt.UnixNano(), rec.LastAccessedAt.UnixNano(), game)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLite) LoadSession(id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec               session.Record
		variant           string
		created, accessed int64
		game              sql.NullString
	)
	err := s.db.QueryRow(`
	SELECT id, config_name, variant, created_at, last_accessed_at, game
	FROM sessions WHERE id = ?
	`, id).Scan(&rec.ID, &rec.ConfigName, &variant, &created, &accessed, &game)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := json.Unmarshal([]byte(variant), &rec.Variant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variant: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created)
	rec.LastAccessedAt = time.Unix(0, accessed)
	if game.Valid {
		rec.Game = &engine.SavedGame{}
		if err := json.Unmarshal([]byte(game.String), rec.Game); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game: %w", err)
		}
	}
	return &rec, nil
}

func (s *SQLite) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *SQLite) ListSessions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) SessionExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	return s.db.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one) == nil
}

func (s *SQLite) SaveGame(id string, game *engine.SavedGame) error {
	data, err := marshalGame(game)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
	INSERT INTO sessions (id, game) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET game = excluded.game
	`, id, data)
	if err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	return nil
}

func (s *SQLite) ClearGame(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`UPDATE sessions SET game = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear game: %w", err)
	}
	return nil
}

func (s *SQLite) BestScore() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var score int
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, bestScoreKey).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read best score: %w", err)
	}
	return score, nil
}

func (s *SQLite) RaiseBestScore(score int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best int
	err := s.db.QueryRow(`
	INSERT INTO meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = MAX(value, excluded.value)
	RETURNING value
	`, bestScoreKey, score).Scan(&best)
	if err != nil {
		return 0, fmt.Errorf("failed to write best score: %w", err)
	}
	return best, nil
}

// marshalGame returns nil for a nil game so that it is stored as NULL
func marshalGame(game *engine.SavedGame) (any, error) {
	if game == nil {
		return nil, nil
	}
	data, err := json.Marshal(game)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game: %w", err)
	}
	return string(data), nil
}
