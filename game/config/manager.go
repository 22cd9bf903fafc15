package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/duel2048/game/engine"
	"github.com/wricardo/duel2048/game/service"
)

// ClassicID names the built-in variant, available even without a file
const ClassicID = "classic"

var (
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Manager handles variant loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.Variant
	configs       map[string]*engine.Variant
	mu            sync.RWMutex
}

// NewManager creates a new variant manager over configDir
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.Variant),
	}
	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}
	return m, nil
}

// LoadConfig loads a variant by name. "classic" falls back to the built-in
// variant when no classic.json exists.
func (m *Manager) LoadConfig(name string) (*engine.Variant, error) {
	name = strings.TrimSuffix(name, ".json")

	m.mu.RLock()
	if variant, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return variant, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if variant, exists := m.configs[name]; exists {
		return variant, nil
	}

	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrConfigNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(m.configDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			if name == ClassicID {
				variant := engine.ClassicVariant()
				m.configs[name] = variant
				return variant, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	variant, err := engine.ParseVariant(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m.configs[name] = variant
	return variant, nil
}

// ListConfigs returns information about all available variants
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	ids := []string{ClassicID}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if id := strings.TrimSuffix(entry.Name(), ".json"); id != ClassicID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var configs []*service.ConfigInfo
	for _, id := range ids {
		variant, err := m.LoadConfig(id)
		if err != nil {
			// Skip invalid variants
			continue
		}
		configs = append(configs, &service.ConfigInfo{
			Filename:    id + ".json",
			ConfigID:    id,
			Name:        variant.Name,
			Description: variant.Description,
			GridSize:    variant.Size,
			WinValue:    variant.WinValue,
		})
	}
	return configs, nil
}

// GetDefault returns the default variant
func (m *Manager) GetDefault() *engine.Variant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default variant by name
func (m *Manager) SetDefault(name string) error {
	variant, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = variant
	return nil
}

// RefreshCache drops cached variants and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.Variant)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

func (m *Manager) loadDefaultConfig() error {
	variant, err := m.LoadConfig(ClassicID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = variant
	return nil
}

// SaveConfig validates and writes a variant to disk
func (m *Manager) SaveConfig(name string, variant *engine.Variant) error {
	if err := engine.ValidateVariant(variant); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: bad name %q", ErrInvalidConfig, name)
	}

	data, err := json.MarshalIndent(variant, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.configDir, name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[name] = variant
	m.mu.Unlock()
	return nil
}
