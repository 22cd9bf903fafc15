package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/duel2048/game/agent"
	"github.com/wricardo/duel2048/game/engine"
)

func newTestManager(t *testing.T, p Persistence) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		Persistence: p,
		Agents: func() (agent.Worker, agent.Worker) {
			return answer(0), answer(0)
		},
	})
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Failed to close manager: %v", err)
		}
	})
	return m
}

func TestManager_Create(t *testing.T) {
	manager := newTestManager(t, nil)
	variant := engine.ClassicVariant()

	t.Run("create with custom ID", func(t *testing.T) {
		session, err := manager.Create("test-session", "classic", variant)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if session.ID != "test-session" {
			t.Errorf("Expected session ID 'test-session', got '%s'", session.ID)
		}
		if session.Game == nil {
			t.Fatal("Expected game to be running")
		}
		if got := len(session.Game.Snapshot().Grid.Tiles); got != engine.DefaultStartTiles {
			t.Errorf("Expected %d start tiles, got %d", engine.DefaultStartTiles, got)
		}
	})

	t.Run("create with auto-generated ID", func(t *testing.T) {
		session, err := manager.Create("", "classic", variant)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if len(session.ID) != 4 {
			t.Errorf("Expected 4-character session ID, got %q", session.ID)
		}
	})

	t.Run("nil variant falls back to classic", func(t *testing.T) {
		session, err := manager.Create("", "", nil)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if session.Variant.Name != "Classic" {
			t.Errorf("Expected classic variant, got %q", session.Variant.Name)
		}
	})

	t.Run("duplicate session ID", func(t *testing.T) {
		_, err := manager.Create("test-session", "classic", variant)
		if err != ErrSessionAlreadyExists {
			t.Errorf("Expected ErrSessionAlreadyExists, got %v", err)
		}
	})

	t.Run("case-insensitive duplicate check", func(t *testing.T) {
		_, err := manager.Create("TEST-SESSION", "classic", variant)
		if err != ErrSessionAlreadyExists {
			t.Errorf("Expected ErrSessionAlreadyExists for case variant, got %v", err)
		}
	})

	t.Run("invalid variant", func(t *testing.T) {
		invalid := engine.ClassicVariant()
		invalid.Name = ""
		if _, err := manager.Create("invalid-test", "bad", invalid); err == nil {
			t.Error("Expected error for invalid variant")
		}
	})

	t.Run("invalid session ID", func(t *testing.T) {
		for _, id := range []string{"../etc", "a/b", "with space", strings.Repeat("a", 65)} {
			if _, err := manager.Create(id, "classic", nil); !errors.Is(err, ErrInvalidSessionID) {
				t.Errorf("%q: expected ErrInvalidSessionID, got %v", id, err)
			}
		}
	})
}

func TestManager_Get(t *testing.T) {
	manager := newTestManager(t, nil)
	created, _ := manager.Create("get-test", "classic", nil)

	t.Run("get existing session", func(t *testing.T) {
		session, err := manager.Get("get-test")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if session.Game != created.Game {
			t.Error("Expected the same running game")
		}
	})

	t.Run("case-insensitive get", func(t *testing.T) {
		session, err := manager.Get("GET-TEST")
		if err != nil {
			t.Fatalf("Failed to get session with different case: %v", err)
		}
		if session.ID != created.ID {
			t.Errorf("Expected same session regardless of case")
		}
	})

	t.Run("get non-existent session", func(t *testing.T) {
		if _, err := manager.Get("non-existent"); err != ErrSessionNotFound {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestManager_GetOrCreate(t *testing.T) {
	manager := newTestManager(t, nil)

	first, err := manager.GetOrCreate("new-session", "classic", nil)
	if err != nil {
		t.Fatalf("Failed to get or create session: %v", err)
	}
	second, err := manager.GetOrCreate("new-session", "classic", nil)
	if err != nil {
		t.Fatalf("Failed to get existing session: %v", err)
	}
	if first.Game != second.Game {
		t.Error("Expected the existing session to be returned")
	}
}

func TestManager_Delete(t *testing.T) {
	p := NewMemoryPersistence()
	manager := newTestManager(t, p)
	manager.Create("delete-test", "classic", nil)

	t.Run("delete existing session", func(t *testing.T) {
		if err := manager.Delete("delete-test"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if _, err := manager.Get("delete-test"); err != ErrSessionNotFound {
			t.Error("Expected session to be deleted")
		}
		if p.SessionExists("delete-test") {
			t.Error("Expected persisted session to be deleted")
		}
	})

	t.Run("delete non-existent session", func(t *testing.T) {
		if err := manager.Delete("non-existent"); err != ErrSessionNotFound {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("case-insensitive delete", func(t *testing.T) {
		manager.Create("case-test", "classic", nil)
		if err := manager.Delete("CASE-TEST"); err != nil {
			t.Fatalf("Failed to delete with different case: %v", err)
		}
		if _, err := manager.Get("case-test"); err != ErrSessionNotFound {
			t.Error("Expected session to be deleted regardless of case")
		}
	})

	t.Run("deleted game stops", func(t *testing.T) {
		session, _ := manager.Create("stop-test", "classic", nil)
		manager.Delete("stop-test")
		if _, _, err := session.Game.Move(context.Background(), engine.Up); err != ErrControllerStopped {
			t.Errorf("Expected ErrControllerStopped, got %v", err)
		}
	})
}

func TestManager_List(t *testing.T) {
	manager := newTestManager(t, nil)

	for i := 1; i <= 3; i++ {
		if _, err := manager.Create(fmt.Sprintf("list-%d", i), "classic", nil); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
	}

	found := make(map[string]bool)
	for _, s := range manager.List() {
		found[s.ID] = true
	}
	for i := 1; i <= 3; i++ {
		if id := fmt.Sprintf("list-%d", i); !found[id] {
			t.Errorf("Session %s not found in list", id)
		}
	}
	if manager.Count() != 3 {
		t.Errorf("Expected 3 sessions, got %d", manager.Count())
	}
}

func TestManager_CleanupExpired(t *testing.T) {
	manager := newTestManager(t, nil)
	manager.Create("active", "classic", nil)
	manager.Create("expired", "classic", nil)

	// Simulate an idle session
	manager.mu.Lock()
	manager.sessions["expired"].session.LastAccessedAt = time.Now().Add(-2 * time.Hour)
	manager.mu.Unlock()

	if evicted := manager.CleanupExpiredSessions(time.Hour); evicted != 1 {
		t.Errorf("Expected 1 session to be evicted, got %d", evicted)
	}
	if manager.Count() != 1 {
		t.Errorf("Expected 1 running session, got %d", manager.Count())
	}

	// Evicted sessions come back from persistence on demand
	if _, err := manager.Get("expired"); err != nil {
		t.Errorf("Expected evicted session to be restored: %v", err)
	}
	if manager.Count() != 2 {
		t.Errorf("Expected 2 running sessions, got %d", manager.Count())
	}
}

func TestManager_UpdateLastAccessed(t *testing.T) {
	manager := newTestManager(t, nil)
	session, _ := manager.Create("access-test", "classic", nil)
	originalTime := session.LastAccessedAt

	time.Sleep(10 * time.Millisecond)

	if err := manager.UpdateLastAccessed("access-test"); err != nil {
		t.Fatalf("Failed to update last accessed: %v", err)
	}
	updated, _ := manager.Get("access-test")
	if !updated.LastAccessedAt.After(originalTime) {
		t.Error("Expected LastAccessedAt to be updated")
	}
	if err := manager.UpdateLastAccessed("missing"); err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_RestoreAfterRestart(t *testing.T) {
	p, err := NewFilePersistence(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}

	first := NewManager(ManagerConfig{Persistence: p, Agents: func() (agent.Worker, agent.Worker) {
		return answer(0), answer(0)
	}})
	session, err := first.Create("keep", "classic", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	before := session.Game.Snapshot()
	if err := first.Close(); err != nil {
		t.Fatalf("Failed to close manager: %v", err)
	}
	if _, err := first.Create("late", "classic", nil); err != ErrManagerClosed {
		t.Errorf("Expected ErrManagerClosed, got %v", err)
	}

	second := newTestManager(t, p)
	if err := second.LoadPersistedSessions(); err != nil {
		t.Fatalf("Failed to load persisted sessions: %v", err)
	}
	if second.Count() != 1 {
		t.Fatalf("Expected 1 restored session, got %d", second.Count())
	}

	restored, err := second.Get("keep")
	if err != nil {
		t.Fatalf("Failed to get restored session: %v", err)
	}
	after := restored.Game.Snapshot()
	if fmt.Sprint(after.Grid.Values) != fmt.Sprint(before.Grid.Values) {
		t.Errorf("Expected grid %v, got %v", before.Grid.Values, after.Grid.Values)
	}
	if restored.ConfigName != "classic" {
		t.Errorf("Expected config classic, got %q", restored.ConfigName)
	}
	if err := second.SaveAllSessions(); err != nil {
		t.Errorf("Failed to save sessions: %v", err)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	manager := newTestManager(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := manager.GetOrCreate(fmt.Sprintf("c-%d", i%10), "classic", nil)
			if err != nil && err != ErrSessionAlreadyExists {
				errs <- err
				return
			}
			if err == nil {
				if _, _, err := session.Game.Move(context.Background(), engine.Directions[i%4]); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error during concurrent access: %v", err)
	}
	if manager.Count() != 10 {
		t.Errorf("Expected 10 sessions, got %d", manager.Count())
	}
}

func TestManager_SessionIsolation(t *testing.T) {
	manager := newTestManager(t, nil)
	session1, _ := manager.Create("iso-1", "classic", nil)
	session2, _ := manager.Create("iso-2", "classic", nil)
	before := session2.Game.Snapshot()

	ctx := context.Background()
	for _, dir := range engine.Directions {
		session1.Game.Move(ctx, dir)
	}

	after := session2.Game.Snapshot()
	if fmt.Sprint(after.Grid.Values) != fmt.Sprint(before.Grid.Values) {
		t.Error("Session 2 should not be affected by session 1 moves")
	}
}

func TestManager_SessionIDGeneration(t *testing.T) {
	manager := newTestManager(t, nil)

	generatedIDs := make(map[string]bool)
	for i := 0; i < 50; i++ {
		session, err := manager.Create("", "classic", nil)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if generatedIDs[session.ID] {
			t.Errorf("Duplicate session ID generated: %s", session.ID)
		}
		generatedIDs[session.ID] = true
	}
}
