// Package config manages bizstore configuration and the .bizstore directory.
// It handles loading, saving, and initializing the workspace configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	Dir          = ".bizstore"
	ConfigFile   = "config"
	DatabaseFile = "bizstore.db"
	ExportsDir   = "exports"
)

// Remote kinds.
const (
	RemotePostgREST = "postgrest"
	RemotePostgres  = "postgres"
	RemoteNone      = "none"
)

// Environment overrides for secrets that should not live in the config file.
const (
	EnvRemoteURL   = "BIZSTORE_REMOTE_URL"
	EnvAPIKey      = "BIZSTORE_API_KEY"
	EnvAccessToken = "BIZSTORE_ACCESS_TOKEN"
	EnvDSN         = "BIZSTORE_DSN"
)

type StorageConfig struct {
	Backend    string `toml:"backend"` // bolt, sqlite or memory
	Path       string `toml:"path,omitempty"`
	QuotaBytes int64  `toml:"quota_bytes,omitempty"`
}

type RemoteConfig struct {
	Kind        string `toml:"kind"`
	URL         string `toml:"url,omitempty"`
	APIKey      string `toml:"api_key,omitempty"`
	AccessToken string `toml:"access_token,omitempty"`
	DSN         string `toml:"dsn,omitempty"`
	Timeout     string `toml:"timeout,omitempty"`
	MaxRetries  int    `toml:"max_retries"`
}

type LocalConfig struct {
	IDPrefix string `toml:"id_prefix"`
}

type BackupConfig struct {
	SafetyBackup bool `toml:"safety_backup"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config represents the bizstore configuration
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Remote  RemoteConfig  `toml:"remote"`
	Local   LocalConfig   `toml:"local"`
	Backup  BackupConfig  `toml:"backup"`
	Log     LogConfig     `toml:"log"`
	path    string        // path to .bizstore directory
}

// Default returns the configuration written by Initialize.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Backend: "bolt"},
		Remote:  RemoteConfig{Kind: RemoteNone, Timeout: "30s"},
		Local:   LocalConfig{IDPrefix: "local_"},
		Backup:  BackupConfig{SafetyBackup: true},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// FindRoot finds the .bizstore directory by walking up from start
func FindRoot(start string) (string, error) {
	dir := start
	for {
		path := filepath.Join(dir, Dir)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a bizstore workspace (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration found from the current directory
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadFrom(cwd)
}

// LoadFrom loads the configuration found by walking up from dir, then applies
// environment overrides.
func LoadFrom(dir string) (*Config, error) {
	root, err := FindRoot(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = root
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRemoteURL); v != "" {
		c.Remote.URL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.Remote.AccessToken = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		c.Remote.DSN = v
	}
}

// Validate checks the values the application cannot start without.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "", "bolt", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Remote.Kind {
	case "", RemoteNone:
	case RemotePostgREST:
		if c.Remote.URL == "" {
			return fmt.Errorf("remote kind %q requires url", c.Remote.Kind)
		}
	case RemotePostgres:
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote kind %q requires dsn", c.Remote.Kind)
		}
	default:
		return fmt.Errorf("unknown remote kind %q", c.Remote.Kind)
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote max_retries must not be negative")
	}
	if _, err := c.RemoteTimeout(); err != nil {
		return err
	}
	return nil
}

// RemoteTimeout parses remote.timeout, defaulting to 30 seconds.
func (c *Config) RemoteTimeout() (time.Duration, error) {
	if c.Remote.Timeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Remote.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid remote timeout %q: %w", c.Remote.Timeout, err)
	}
	return d, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0600)
}

// Path returns the path to the .bizstore directory
func (c *Config) Path() string {
	return c.path
}

// StoragePath returns the database file for the configured backend. A
// relative storage.path is resolved against the .bizstore directory.
func (c *Config) StoragePath() string {
	p := c.Storage.Path
	if p == "" {
		p = DatabaseFile
	}
	if filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(c.path, p)
}

// ExportsPath returns the directory backup exports are written to
func (c *Config) ExportsPath() string {
	return filepath.Join(c.path, ExportsDir)
}

// Initialize creates a new .bizstore directory in dir with cfg, or the
// defaults when cfg is nil.
func Initialize(dir string, cfg *Config) (*Config, error) {
	path := filepath.Join(dir, Dir)

	// Check if already initialized
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("bizstore workspace already exists")
	}

	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(path, ExportsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	cfg.path = path
	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(path)
		return nil, err
	}

	return cfg, nil
}
