package session

import (
	"sync"

	"github.com/wricardo/duel2048/game/engine"
)

// MemoryPersistence keeps everything in process memory
type MemoryPersistence struct {
	mu        sync.RWMutex
	records   map[string]Record
	bestScore int
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{records: make(map[string]Record)}
}

func (mp *MemoryPersistence) SaveSession(rec *Record) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	stored := *rec
	if old, ok := mp.records[rec.ID]; ok && stored.Game == nil {
		stored.Game = old.Game
	}
	mp.records[rec.ID] = stored
	return nil
}

func (mp *MemoryPersistence) LoadSession(id string) (*Record, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	rec, ok := mp.records[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

func (mp *MemoryPersistence) DeleteSession(id string) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, ok := mp.records[id]; !ok {
		return ErrSessionNotFound
	}
	delete(mp.records, id)
	return nil
}

func (mp *MemoryPersistence) ListSessions() ([]string, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	ids := make([]string, 0, len(mp.records))
	for id := range mp.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (mp *MemoryPersistence) SessionExists(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	_, ok := mp.records[id]
	return ok
}

func (mp *MemoryPersistence) SaveGame(id string, game *engine.SavedGame) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	rec := mp.records[id]
	rec.ID = id
	rec.Game = game
	mp.records[id] = rec
	return nil
}

func (mp *MemoryPersistence) ClearGame(id string) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if rec, ok := mp.records[id]; ok {
		rec.Game = nil
		mp.records[id] = rec
	}
	return nil
}

func (mp *MemoryPersistence) BestScore() (int, error) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.bestScore, nil
}

func (mp *MemoryPersistence) RaiseBestScore(score int) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.bestScore = max(mp.bestScore, score)
	return mp.bestScore, nil
}
