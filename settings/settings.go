// Package settings loads the application settings from duel2048.yaml,
// DUEL2048_* environment variables and defaults, in that order of precedence
// after explicit overrides.
package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	FileName  = "duel2048"
	EnvPrefix = "DUEL2048"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Agent modes
const (
	AgentsLocal  = "local"
	AgentsRemote = "remote"
)

type Settings struct {
	Server   ServerSettings  `mapstructure:"server"`
	Storage  StorageSettings `mapstructure:"storage"`
	Agents   AgentSettings   `mapstructure:"agents"`
	Variants VariantSettings `mapstructure:"variants"`
	Log      LogSettings     `mapstructure:"log"`
	Sessions SessionSettings `mapstructure:"sessions"`
}

type ServerSettings struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// Addr is the listen address of the HTTP server
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageSettings struct {
	Driver string `mapstructure:"driver"`
	// Path is the sessions directory for "file" and the database file for "sqlite"
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

type AgentSettings struct {
	Mode         string `mapstructure:"mode"`
	PlayerAddr   string `mapstructure:"player_addr"`
	OpponentAddr string `mapstructure:"opponent_addr"`
	MaxDepth     int    `mapstructure:"max_depth"`
}

type VariantSettings struct {
	Dir string `mapstructure:"dir"`
}

type LogSettings struct {
	Debug bool `mapstructure:"debug"`
}

type SessionSettings struct {
	MaxIdleHours int `mapstructure:"max_idle_hours"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.path", "sessions")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("agents.mode", AgentsLocal)
	v.SetDefault("agents.player_addr", "localhost:9091")
	v.SetDefault("agents.opponent_addr", "localhost:9092")
	v.SetDefault("agents.max_depth", 0)
	v.SetDefault("variants.dir", "configs")
	v.SetDefault("log.debug", false)
	v.SetDefault("sessions.max_idle_hours", 24)
}

// Load reads the settings. paths are searched for duel2048.yaml; a missing
// file is not an error. overrides, keyed like "server.port", win over every
// other source.
func Load(overrides map[string]any, paths ...string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read settings: %w", err)
			}
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the enumerated settings
func (s *Settings) Validate() error {
	switch s.Storage.Driver {
	case DriverMemory, DriverFile, DriverSQLite:
	case DriverPostgres:
		if s.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", s.Storage.Driver)
	}

	switch s.Agents.Mode {
	case AgentsLocal, AgentsRemote:
	default:
		return fmt.Errorf("unknown agents.mode %q", s.Agents.Mode)
	}

	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", s.Server.Port)
	}
	if s.Agents.MaxDepth < 0 {
		return fmt.Errorf("agents.max_depth must not be negative")
	}
	return nil
}
