package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Dir), cfg.Path())
	assert.DirExists(t, cfg.ExportsPath())

	loaded, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "bolt", loaded.Storage.Backend)
	assert.Equal(t, RemoteNone, loaded.Remote.Kind)
	assert.Equal(t, "local_", loaded.Local.IDPrefix)
	assert.True(t, loaded.Backup.SafetyBackup)
	assert.Equal(t, filepath.Join(dir, Dir, DatabaseFile), loaded.StoragePath())
}

func TestInitialize_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir, nil)
	require.NoError(t, err)

	_, err = Initialize(dir, nil)
	assert.Error(t, err)
}

func TestLoadFrom_WalksUp(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir, nil)
	require.NoError(t, err)

	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg, err := LoadFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Dir), cfg.Path())
}

func TestLoadFrom_NotAWorkspace(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	assert.Error(t, err)
}

func TestLoadFrom_ParsesSections(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, Dir), 0755))
	content := `
[storage]
backend = "sqlite"
path = "/var/lib/bizstore/data.db"
quota_bytes = 5242880

[remote]
kind = "postgrest"
url = "https://example.supabase.co"
api_key = "anon"
timeout = "5s"
max_retries = 2

[local]
id_prefix = "off_"

[log]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, Dir, ConfigFile), []byte(content), 0600))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/bizstore/data.db", cfg.StoragePath())
	assert.Equal(t, int64(5242880), cfg.Storage.QuotaBytes)
	assert.Equal(t, RemotePostgREST, cfg.Remote.Kind)
	assert.Equal(t, 2, cfg.Remote.MaxRetries)
	assert.Equal(t, "off_", cfg.Local.IDPrefix)
	assert.Equal(t, "json", cfg.Log.Format)
	// Unset sections keep their defaults.
	assert.True(t, cfg.Backup.SafetyBackup)

	timeout, err := cfg.RemoteTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, timeout)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Remote.Kind = RemotePostgREST
	cfg.Remote.URL = "https://file.example"
	_, err := Initialize(dir, cfg)
	require.NoError(t, err)

	t.Setenv(EnvRemoteURL, "https://env.example")
	t.Setenv(EnvAccessToken, "token-from-env")

	loaded, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", loaded.Remote.URL)
	assert.Equal(t, "token-from-env", loaded.Remote.AccessToken)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":  func(c *Config) { c.Storage.Backend = "floppy" },
		"unknown remote":   func(c *Config) { c.Remote.Kind = "mysql" },
		"postgrest no url": func(c *Config) { c.Remote.Kind = RemotePostgREST },
		"postgres no dsn":  func(c *Config) { c.Remote.Kind = RemotePostgres },
		"negative retries": func(c *Config) { c.Remote.MaxRetries = -1 },
		"bad timeout":      func(c *Config) { c.Remote.Timeout = "soon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
