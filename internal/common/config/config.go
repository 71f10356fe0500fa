// Package config provides configuration management for Agentdeck.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Agentdeck.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Runtime     RuntimeConfig     `mapstructure:"runtime"`
	Sessions    SessionsConfig    `mapstructure:"sessions"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds SQLite database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// RuntimeConfig holds agent runtime configuration.
type RuntimeConfig struct {
	// Binary is the agent CLI executable name or path.
	Binary string `mapstructure:"binary"`

	// DefaultModel is used when a session has no persisted or requested model.
	DefaultModel string `mapstructure:"defaultModel"`

	// ContextWindow is the assumed context window size (tokens) until the
	// runtime reports a better value.
	ContextWindow int `mapstructure:"contextWindow"`

	// ProjectContextFile is prepended to the first prompt of a brand-new
	// conversation when present in the session working directory.
	ProjectContextFile string `mapstructure:"projectContextFile"`
}

// SessionsConfig holds session orchestration configuration.
type SessionsConfig struct {
	// BufferCapacity is the per-session output ring buffer size.
	BufferCapacity int `mapstructure:"bufferCapacity"`

	// InteractionTimeout bounds how long a pending interactive request may
	// wait for a human response before resolving to its deny default.
	// Zero disables the timeout.
	InteractionTimeout time.Duration `mapstructure:"interactionTimeout"`
}

// PermissionsConfig holds the locations of the permission settings documents.
// Each file is optional; missing files contribute no patterns.
type PermissionsConfig struct {
	GlobalSettings      string `mapstructure:"globalSettings"`
	GlobalLocalSettings string `mapstructure:"globalLocalSettings"`
	ProjectSettings     string `mapstructure:"projectSettings"`
	ProjectLocal        string `mapstructure:"projectLocalSettings"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// detectDefaultLogFormat returns "json" in production-like environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTDECK_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults
	v.SetDefault("database.path", "~/.agentdeck/agentdeck.db")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentdeck")
	v.SetDefault("nats.maxReconnects", 10)

	// Runtime defaults
	v.SetDefault("runtime.binary", "claude")
	v.SetDefault("runtime.defaultModel", "claude-sonnet-4-5")
	v.SetDefault("runtime.contextWindow", 200000)
	v.SetDefault("runtime.projectContextFile", "AGENTS.md")

	// Session defaults
	v.SetDefault("sessions.bufferCapacity", 5000)
	v.SetDefault("sessions.interactionTimeout", time.Duration(0))

	// Permission settings documents, in precedence order
	v.SetDefault("permissions.globalSettings", "~/.agentdeck/settings.json")
	v.SetDefault("permissions.globalLocalSettings", "~/.agentdeck/settings.local.json")
	v.SetDefault("permissions.projectSettings", ".agentdeck/settings.json")
	v.SetDefault("permissions.projectLocalSettings", ".agentdeck/settings.local.json")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTDECK_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/agentdeck/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("AGENTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys).
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion.
	_ = v.BindEnv("database.path", "AGENTDECK_DATABASE_PATH")
	_ = v.BindEnv("runtime.defaultModel", "AGENTDECK_RUNTIME_DEFAULT_MODEL")
	_ = v.BindEnv("sessions.bufferCapacity", "AGENTDECK_SESSIONS_BUFFER_CAPACITY")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentdeck/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	expandPaths(&cfg)

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if cfg.Sessions.BufferCapacity <= 0 {
		errs = append(errs, "sessions.bufferCapacity must be positive")
	}

	if cfg.Runtime.ContextWindow <= 0 {
		errs = append(errs, "runtime.contextWindow must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// expandPaths replaces a leading ~ in configured paths with the user home
// directory.
func expandPaths(cfg *Config) {
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Permissions.GlobalSettings = expandHome(cfg.Permissions.GlobalSettings)
	cfg.Permissions.GlobalLocalSettings = expandHome(cfg.Permissions.GlobalLocalSettings)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
