package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/duel2048/game/agent"
	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/service"
	"github.com/wricardo/duel2048/logger"
	"github.com/wricardo/duel2048/monitor"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrManagerClosed        = errors.New("session manager closed")
	ErrInvalidSessionID     = errors.New("invalid session id")
)

const maxSessionIDLength = 64

// ManagerConfig wires the collaborators every game of the manager shares
type ManagerConfig struct {
	// Persistence defaults to MemoryPersistence
	Persistence Persistence
	// Agents returns the workers of a new game. Both default to a local
	// expectimax solver.
	Agents func() (player, opponent agent.Worker)
	// Renderers returns the renderers attached to a new game
	Renderers func(sessionID string) []Renderer
	Metrics   *monitor.Metrics
}

type entry struct {
	session *service.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager handles game session lifecycle. Every session runs its own
// Controller goroutine until it is deleted, evicted or the manager closes.
type Manager struct {
	persistence Persistence
	agents      func() (agent.Worker, agent.Worker)
	renderers   func(string) []Renderer
	metrics     *monitor.Metrics

	ctx      context.Context
	stop     context.CancelFunc
	sessions map[string]*entry
	closed   bool
	mu       sync.RWMutex
}

// NewManager creates a new session manager
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		persistence: cfg.Persistence,
		agents:      cfg.Agents,
		renderers:   cfg.Renderers,
		metrics:     cfg.Metrics,
		sessions:    make(map[string]*entry),
	}
	if m.persistence == nil {
		m.persistence = NewMemoryPersistence()
	}
	if m.agents == nil {
		solver := agent.NewExpectimax(0)
		m.agents = func() (agent.Worker, agent.Worker) {
			return agent.NewLocalWorker(solver), agent.NewLocalWorker(solver)
		}
	}
	m.ctx, m.stop = context.WithCancel(context.Background())
	return m
}

// Create creates a new session with the given ID and variant. An empty ID
// gets a generated one.
func (m *Manager) Create(id, configName string, variant *engine.Variant) (*service.Session, error) {
	if variant == nil {
		variant = engine.ClassicVariant()
	}
	if err := engine.ValidateVariant(variant); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if id == "" {
		id = m.generateSessionID()
		for m.sessionExists(id) {
			id = m.generateSessionID()
		}
	} else if !validSessionID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	} else if m.sessionExists(id) {
		return nil, ErrSessionAlreadyExists
	}

	now := time.Now()
	rec := &Record{
		ID:             id,
		ConfigName:     configName,
		Variant:        *variant,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := m.persistence.SaveSession(rec); err != nil {
		// Log error but don't fail the creation
		logger.Log.Warnw("Failed to persist session", "session_id", id, "error", err)
	}

	e := m.start(rec)
	logger.Log.Infow("Session created", "session_id", id, "config", configName, "grid_size", variant.Size)
	return copySession(e.session), nil
}

// start runs a controller for rec. The caller holds m.mu.
func (m *Manager) start(rec *Record) *entry {
	player, opponent := m.agents()
	var renderers []Renderer
	if m.renderers != nil {
		renderers = m.renderers(rec.ID)
	}
	variant := rec.Variant

	ctrl := NewController(ControllerConfig{
		ID:        rec.ID,
		Rules:     variant.Rules,
		Store:     StoreFor(m.persistence, rec.ID),
		Player:    player,
		Opponent:  opponent,
		Renderers: renderers,
		Metrics:   m.metrics,
	})

	ctx, cancel := context.WithCancel(m.ctx)
	e := &entry{
		session: &service.Session{
			ID:             rec.ID,
			ConfigName:     rec.ConfigName,
			Variant:        &variant,
			Game:           ctrl,
			CreatedAt:      rec.CreatedAt,
			LastAccessedAt: rec.LastAccessedAt,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(e.done)
		if err := ctrl.Run(ctx); err != nil {
			logger.Log.Errorw("Game controller failed", "session_id", rec.ID, "error", err)
		}
	}()

	m.sessions[strings.ToLower(rec.ID)] = e
	m.metrics.SetActiveSessions(len(m.sessions))
	return e
}

func (e *entry) halt() {
	e.cancel()
	<-e.done
}

func copySession(s *service.Session) *service.Session {
	c := *s
	return &c
}

// Get retrieves a session by ID (case-insensitive), restoring it from
// persistence when it is not running
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	e, exists := m.sessions[strings.ToLower(id)]
	if exists {
		s := copySession(e.session)
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	if !m.persistence.SessionExists(id) {
		return nil, ErrSessionNotFound
	}
	rec, err := m.persistence.LoadSession(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}
	if err := engine.ValidateRules(rec.Variant.Rules); err != nil {
		return nil, fmt.Errorf("persisted session %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	// Another caller may have restored it meanwhile
	if e, exists := m.sessions[strings.ToLower(id)]; exists {
		return copySession(e.session), nil
	}
	return copySession(m.start(rec).session), nil
}

// GetOrCreate gets an existing session or creates a new one
func (m *Manager) GetOrCreate(id, configName string, variant *engine.Variant) (*service.Session, error) {
	session, err := m.Get(id)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, configName, variant)
	}
	return nil, err
}

// List returns all running sessions
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		result = append(result, copySession(e.session))
	}
	return result
}

// Delete stops a session and removes it from persistence
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	e, inMemory := m.sessions[strings.ToLower(id)]
	if inMemory {
		delete(m.sessions, strings.ToLower(id))
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	m.mu.Unlock()

	if inMemory {
		e.halt()
		id = e.session.ID
	}

	if m.persistence.SessionExists(id) {
		if err := m.persistence.DeleteSession(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}
	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory stops a session but keeps it in persistence
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	e, exists := m.sessions[strings.ToLower(id)]
	if exists {
		delete(m.sessions, strings.ToLower(id))
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	m.mu.Unlock()

	if !exists {
		return ErrSessionNotFound
	}
	e.halt()
	return nil
}

// UpdateLastAccessed updates the last accessed time for a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	e, exists := m.sessions[strings.ToLower(id)]
	if !exists {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	e.session.LastAccessedAt = time.Now()
	rec := recordOf(e.session)
	m.mu.Unlock()

	if err := m.persistence.SaveSession(rec); err != nil {
		logger.Log.Warnw("Failed to persist session after access update", "session_id", id, "error", err)
	}
	return nil
}

func recordOf(s *service.Session) *Record {
	return &Record{
		ID:             s.ID,
		ConfigName:     s.ConfigName,
		Variant:        *s.Variant,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
	}
}

// CleanupExpiredSessions stops sessions that haven't been accessed in the
// given duration. Their persisted state is kept.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*entry
	for key, e := range m.sessions {
		if e.session.LastAccessedAt.Before(cutoff) {
			delete(m.sessions, key)
			expired = append(expired, e)
		}
	}
	m.metrics.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	for _, e := range expired {
		e.halt()
	}
	if len(expired) > 0 {
		logger.Log.Infow("Evicted idle sessions", "count", len(expired), "max_age", maxAge.String())
	}
	return len(expired)
}

// Count returns the number of running sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID generates a random 4-character session ID
func (m *Manager) generateSessionID() string {
	bytes := make([]byte, 2)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// validSessionID accepts IDs that are safe as file names and URL segments
func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// sessionExists checks memory and persistence. The caller holds m.mu.
func (m *Manager) sessionExists(id string) bool {
	if _, exists := m.sessions[strings.ToLower(id)]; exists {
		return true
	}
	return m.persistence.SessionExists(id)
}

// LoadPersistedSessions starts every persisted session
func (m *Manager) LoadPersistedSessions() error {
	sessionIDs, err := m.persistence.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}

	loadedCount := 0
	for _, id := range sessionIDs {
		if _, exists := m.sessions[strings.ToLower(id)]; exists {
			continue
		}
		rec, err := m.persistence.LoadSession(id)
		if err != nil {
			logger.Log.Warnw("Failed to load persisted session", "session_id", id, "error", err)
			continue
		}
		if err := engine.ValidateRules(rec.Variant.Rules); err != nil {
			logger.Log.Warnw("Skipping persisted session with invalid rules", "session_id", id, "error", err)
			continue
		}
		m.start(rec)
		loadedCount++
	}

	if loadedCount > 0 {
		logger.Log.Infow("Loaded persisted sessions", "count", loadedCount)
	}
	return nil
}

// SaveAllSessions writes the metadata of every running session. Games are
// persisted by their controllers on every change.
func (m *Manager) SaveAllSessions() error {
	m.mu.RLock()
	records := make([]*Record, 0, len(m.sessions))
	for _, e := range m.sessions {
		records = append(records, recordOf(e.session))
	}
	m.mu.RUnlock()

	errorCount := 0
	for _, rec := range records {
		if err := m.persistence.SaveSession(rec); err != nil {
			logger.Log.Warnw("Failed to save session", "session_id", rec.ID, "error", err)
			errorCount++
		}
	}
	if errorCount > 0 {
		return fmt.Errorf("failed to save %d sessions", errorCount)
	}
	return nil
}

// Close stops every running session and waits for their controllers
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := make([]*entry, 0, len(m.sessions))
	for key, e := range m.sessions {
		entries = append(entries, e)
		delete(m.sessions, key)
	}
	m.metrics.SetActiveSessions(0)
	m.mu.Unlock()

	m.stop()
	for _, e := range entries {
		<-e.done
	}
	return nil
}
