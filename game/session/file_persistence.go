package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/wricardo/duel2048/game/engine"
)

const bestScoreFile = "best_score"

// FilePersistence implements Persistence with one JSON file per session
// and a plain-text best score file
type FilePersistence struct {
	sessionsDir string
	mu          sync.Mutex
}

// NewFilePersistence creates a new file-based session persistence layer
func NewFilePersistence(sessionsDir string) (*FilePersistence, error) {
	// Create sessions directory if it doesn't exist
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &FilePersistence{sessionsDir: sessionsDir}, nil
}

// SaveSession writes the session metadata, keeping a stored game
func (fp *FilePersistence) SaveSession(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("session record cannot be nil")
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	data := *rec
	if data.Game == nil {
		if old, err := fp.read(rec.ID); err == nil {
			data.Game = old.Game
		}
	}
	return fp.write(&data)
}

// LoadSession reads a session record
func (fp *FilePersistence) LoadSession(id string) (*Record, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.read(id)
}

// DeleteSession removes a session file
func (fp *FilePersistence) DeleteSession(id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.Remove(fp.getFilePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// ListSessions returns all persisted session IDs
func (fp *FilePersistence) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(fp.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessionIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			sessionIDs = append(sessionIDs, strings.TrimSuffix(name, ".json"))
		}
	}
	return sessionIDs, nil
}

// SessionExists checks if a session file exists
func (fp *FilePersistence) SessionExists(id string) bool {
	_, err := os.Stat(fp.getFilePath(id))
	return err == nil
}

// SaveGame stores the game inside the session file
func (fp *FilePersistence) SaveGame(id string, game *engine.SavedGame) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	rec, err := fp.read(id)
	if errors.Is(err, ErrSessionNotFound) {
		rec = &Record{ID: id}
	} else if err != nil {
		return err
	}
	rec.Game = game
	return fp.write(rec)
}

// ClearGame drops the game from the session file
func (fp *FilePersistence) ClearGame(id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	rec, err := fp.read(id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Game == nil {
		return nil
	}
	rec.Game = nil
	return fp.write(rec)
}

// BestScore reads the best score, 0 when none was stored
func (fp *FilePersistence) BestScore() (int, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.readBestScore()
}

func (fp *FilePersistence) readBestScore() (int, error) {
	data, err := os.ReadFile(filepath.Join(fp.sessionsDir, bestScoreFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read best score: %w", err)
	}
	score, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse best score: %w", err)
	}
	return score, nil
}

func (fp *FilePersistence) RaiseBestScore(score int) (int, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	best, err := fp.readBestScore()
	if err != nil {
		return 0, err
	}
	if score <= best {
		return best, nil
	}
	path := filepath.Join(fp.sessionsDir, bestScoreFile)
	if err := os.WriteFile(path, []byte(strconv.Itoa(score)), 0644); err != nil {
		return best, fmt.Errorf("failed to write best score: %w", err)
	}
	return score, nil
}

func (fp *FilePersistence) read(id string) (*Record, error) {
	jsonData, err := os.ReadFile(fp.getFilePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(jsonData, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return &rec, nil
}

func (fp *FilePersistence) write(rec *Record) error {
	// Marshal to JSON with indentation for readability
	jsonData, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	if err := os.WriteFile(fp.getFilePath(rec.ID), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// getFilePath returns the full file path for a session ID
func (fp *FilePersistence) getFilePath(id string) string {
	return filepath.Join(fp.sessionsDir, fmt.Sprintf("%s.json", id))
}
