package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName+".yaml"), []byte(content), 0644))
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(nil, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", s.Server.Addr())
	assert.Equal(t, "/metrics", s.Server.MetricsPath)
	assert.Equal(t, DriverFile, s.Storage.Driver)
	assert.Equal(t, "sessions", s.Storage.Path)
	assert.Equal(t, AgentsLocal, s.Agents.Mode)
	assert.Equal(t, "configs", s.Variants.Dir)
	assert.Equal(t, 24, s.Sessions.MaxIdleHours)
	assert.False(t, s.Log.Debug)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
server:
  port: 9000
storage:
  driver: sqlite
  path: data/duel2048.db
agents:
  mode: remote
  player_addr: agents:7000
  max_depth: 4
log:
  debug: true
`)

	s, err := Load(nil, dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, s.Server.Port)
	assert.Equal(t, "localhost", s.Server.Host)
	assert.Equal(t, DriverSQLite, s.Storage.Driver)
	assert.Equal(t, "data/duel2048.db", s.Storage.Path)
	assert.Equal(t, AgentsRemote, s.Agents.Mode)
	assert.Equal(t, "agents:7000", s.Agents.PlayerAddr)
	assert.Equal(t, "localhost:9092", s.Agents.OpponentAddr)
	assert.Equal(t, 4, s.Agents.MaxDepth)
	assert.True(t, s.Log.Debug)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server:\n  port: 9000\n  host: 0.0.0.0\n")
	t.Setenv("DUEL2048_SERVER_PORT", "9100")
	t.Setenv("DUEL2048_STORAGE_DRIVER", "memory")

	s, err := Load(map[string]any{"server.host": "127.0.0.1"}, dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, s.Server.Port, "env beats file")
	assert.Equal(t, "127.0.0.1", s.Server.Host, "overrides beat file")
	assert.Equal(t, DriverMemory, s.Storage.Driver)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"unknown driver", map[string]any{"storage.driver": "redis"}},
		{"postgres without dsn", map[string]any{"storage.driver": "postgres"}},
		{"unknown agent mode", map[string]any{"agents.mode": "cloud"}},
		{"port out of range", map[string]any{"server.port": 70000}},
		{"negative depth", map[string]any{"agents.max_depth": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.overrides)
			assert.Error(t, err)
		})
	}

	s, err := Load(map[string]any{"storage.driver": "postgres", "storage.dsn": "host=db"})
	require.NoError(t, err)
	assert.Equal(t, "host=db", s.Storage.DSN)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "server: [port\n")

	_, err := Load(nil, dir)
	assert.Error(t, err)
}
