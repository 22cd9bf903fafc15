package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/service"
)

// mockGame drives an engine synchronously, with no agents
type mockGame struct {
	eng        *engine.GameEngine
	playerAI   bool
	opponentAI bool
	restarts   int
}

func newMockGame(rules engine.Rules) *mockGame {
	return &mockGame{eng: engine.NewEngine(rules, rand.New(rand.NewPCG(1, 2)))}
}

func (g *mockGame) Move(_ context.Context, dir engine.Direction) (engine.MoveResult, engine.Snapshot, error) {
	if g.eng.IsGameTerminated() {
		return engine.MoveResult{Direction: dir}, g.Snapshot(), nil
	}
	result := g.eng.Move(dir)
	if result.Moved {
		if _, err := g.eng.AddRandomTile(); err != nil {
			return result, g.Snapshot(), err
		}
		g.eng.CheckGameOver()
	}
	return result, g.Snapshot(), nil
}

func (g *mockGame) Restart(context.Context) (engine.Snapshot, error) {
	g.restarts++
	g.eng.Reset()
	return g.Snapshot(), nil
}

func (g *mockGame) KeepPlaying(context.Context) (engine.Snapshot, error) {
	g.eng.ContinueAfterWin()
	return g.Snapshot(), nil
}

func (g *mockGame) SetPlayerAI(_ context.Context, enabled bool) (engine.Snapshot, error) {
	if enabled && g.eng.Rules().Size != 4 {
		return engine.Snapshot{}, errors.New("agents only play 4x4 games")
	}
	g.playerAI = enabled
	return g.Snapshot(), nil
}

func (g *mockGame) SetOpponentAI(_ context.Context, enabled bool) (engine.Snapshot, error) {
	g.opponentAI = enabled
	return g.Snapshot(), nil
}

func (g *mockGame) Snapshot() engine.Snapshot {
	return engine.Snapshot{
		Grid: g.eng.Grid().Snapshot(),
		Status: engine.Status{
			Score:       g.eng.Score(),
			Over:        g.eng.IsOver(),
			Won:         g.eng.IsWon(),
			Terminated:  g.eng.IsGameTerminated(),
			KeepPlaying: g.eng.KeepPlaying(),
			PlayerAI:    g.playerAI,
			OpponentAI:  g.opponentAI,
		},
	}
}

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	sessions map[string]*service.Session
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) Create(id, configName string, variant *engine.Variant) (*service.Session, error) {
	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("test_%d", len(m.sessions)+1)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	session := &service.Session{
		ID:             id,
		ConfigName:     configName,
		Variant:        variant,
		Game:           newMockGame(variant.Rules),
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, errors.New("session not found")
	}
	return session, nil
}

func (m *MockSessionManager) GetOrCreate(id, configName string, variant *engine.Variant) (*service.Session, error) {
	if session, exists := m.sessions[id]; exists {
		return session, nil
	}
	return m.Create(id, configName, variant)
}

func (m *MockSessionManager) List() []*service.Session {
	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if session, exists := m.sessions[id]; exists {
		session.LastAccessedAt = time.Now()
		return nil
	}
	return errors.New("session not found")
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	configs map[string]*engine.Variant
}

func NewMockConfigManager() *MockConfigManager {
	big := &engine.Variant{
		Name:        "Big",
		Description: "5x5 to 4096",
		Rules:       engine.Rules{Size: 5, StartTiles: 2, WinValue: 4096, FourProbability: 0.1},
	}
	return &MockConfigManager{
		configs: map[string]*engine.Variant{
			"classic": engine.ClassicVariant(),
			"big":     big,
		},
	}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.Variant, error) {
	if v, ok := m.configs[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", service.ErrConfigNotFound, name)
}

func (m *MockConfigManager) ListConfigs() ([]*service.ConfigInfo, error) {
	var infos []*service.ConfigInfo
	for id, v := range m.configs {
		infos = append(infos, &service.ConfigInfo{
			Filename:    id + ".json",
			ConfigID:    id,
			Name:        v.Name,
			Description: v.Description,
			GridSize:    v.Size,
			WinValue:    v.WinValue,
		})
	}
	return infos, nil
}

func (m *MockConfigManager) GetDefault() *engine.Variant {
	return m.configs["classic"]
}

func (m *MockConfigManager) SaveConfig(name string, variant *engine.Variant) error {
	m.configs[name] = variant
	return nil
}

func newTestService() (service.GameService, *MockSessionManager) {
	sessions := NewMockSessionManager()
	return service.NewGameService(sessions, NewMockConfigManager()), sessions
}

func TestGameService_CreateSession(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name       string
		configName string
		wantConfig string
		wantSize   int
		wantErr    string
	}{
		{"default variant", "", "classic", 4, ""},
		{"named variant", "big", "big", 5, ""},
		{"unknown variant", "huge", "", 0, "Available configs"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			info, err := svc.CreateSession(ctx, test.configName)
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", test.wantErr, err)
				}
				if !errors.Is(err, service.ErrConfigNotFound) {
					t.Errorf("Expected ErrConfigNotFound in chain, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
			if info.ConfigName != test.wantConfig {
				t.Errorf("Expected config %q, got %q", test.wantConfig, info.ConfigName)
			}
			if info.GameState == nil || info.GameState.Grid.Size != test.wantSize {
				t.Errorf("Expected a %dx%d game state", test.wantSize, test.wantSize)
			}
		})
	}
}

func TestGameService_Move(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	info, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := svc.Move(ctx, info.ID, "sideways"); !errors.Is(err, engine.ErrInvalidDirection) {
		t.Errorf("Expected ErrInvalidDirection, got %v", err)
	}
	if _, err := svc.Move(ctx, "nope", "up"); err == nil {
		t.Error("Expected error for unknown session")
	}

	// Two start tiles always allow at least one direction to move
	moved := false
	for _, dir := range []string{"up", "right", "down", "left"} {
		result, err := svc.Move(ctx, info.ID, dir)
		if err != nil {
			t.Fatalf("Move %s failed: %v", dir, err)
		}
		if result.GameState == nil {
			t.Fatal("Expected game state in move result")
		}
		if result.Direction != dir {
			t.Errorf("Expected direction %s, got %s", dir, result.Direction)
		}
		if result.Message == "" {
			t.Error("Expected a move message")
		}
		moved = moved || result.Success
	}
	if !moved {
		t.Error("Expected at least one successful move")
	}
}

func TestGameService_SetAI(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	classic, _ := svc.CreateSession(ctx, "classic")
	on, off := true, false

	snap, err := svc.SetAI(ctx, classic.ID, &on, nil)
	if err != nil {
		t.Fatalf("SetAI failed: %v", err)
	}
	if !snap.Status.PlayerAI || snap.Status.OpponentAI {
		t.Errorf("Expected only player AI on, got %+v", snap.Status)
	}

	snap, err = svc.SetAI(ctx, classic.ID, &off, &on)
	if err != nil {
		t.Fatalf("SetAI failed: %v", err)
	}
	if snap.Status.PlayerAI || !snap.Status.OpponentAI {
		t.Errorf("Expected only opponent AI on, got %+v", snap.Status)
	}

	big, _ := svc.CreateSession(ctx, "big")
	if _, err := svc.SetAI(ctx, big.ID, &on, nil); err == nil {
		t.Error("Expected agents to be refused on a 5x5 game")
	}
}

func TestGameService_ListSessions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateSession(ctx, ""); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}
	sessions, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("Expected 3 sessions, got %d", len(sessions))
	}
}

func TestGameService_RestartAndKeepPlaying(t *testing.T) {
	svc, sessions := newTestService()
	ctx := context.Background()

	info, _ := svc.CreateSession(ctx, "")
	game := sessions.sessions[info.ID].Game.(*mockGame)

	snap, err := svc.Restart(ctx, info.ID)
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if game.restarts != 1 {
		t.Errorf("Expected 1 restart, got %d", game.restarts)
	}
	if snap.Status.Score != 0 {
		t.Errorf("Expected score 0 after restart, got %d", snap.Status.Score)
	}

	snap, err = svc.KeepPlaying(ctx, info.ID)
	if err != nil {
		t.Fatalf("KeepPlaying failed: %v", err)
	}
	if !snap.Status.KeepPlaying {
		t.Error("Expected keep playing to be set")
	}
}

func TestGameService_DeleteSession(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	info, _ := svc.CreateSession(ctx, "")
	if err := svc.DeleteSession(ctx, info.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := svc.GetGameState(ctx, info.ID); err == nil {
		t.Error("Expected error after delete")
	}
}
