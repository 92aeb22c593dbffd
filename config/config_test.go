package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qw4990/sql_advisor/advisor"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, advisor.DefaultParameter(), cfg.Parameter())
	require.Equal(t, 3, cfg.RetryPolicy().MaxRetries)
	require.Equal(t, time.Second, cfg.RetryPolicy().InitialBackoff)
	require.True(t, cfg.Cache.Enabled)
	require.False(t, cfg.History.Enabled)
}

func TestLoadPartialFile(t *testing.T) {
	t.Setenv(EnvDSN, "")
	t.Setenv(EnvDriver, "")
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: sqlite
dsn: /tmp/shop.db
advisor:
  min-improvement: 0.25
  runs: 5
  fast-query-threshold: 50ms
cache:
  ttl: 1m
history:
  enabled: true
  dir: /tmp/history
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Driver)
	require.Equal(t, "/tmp/shop.db", cfg.DSN)
	p := cfg.Parameter()
	require.Equal(t, 0.25, p.MinImprovement)
	require.Equal(t, 5, p.Runs)
	require.Equal(t, 50*time.Millisecond, p.FastQueryThreshold)
	require.Equal(t, 5, p.MaxSuggestions) // untouched keys keep their defaults
	require.True(t, p.Validate)
	require.Equal(t, time.Minute, cfg.CacheOptions().TTL)
	require.Equal(t, int64(1024), cfg.CacheOptions().MaxEntries)
	require.True(t, cfg.History.Enabled)
	require.Equal(t, "/tmp/history", cfg.History.Dir)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: sqlite\ndsn: file.db\n"), 0o600))
	t.Setenv(EnvDSN, "root@tcp(127.0.0.1:3306)/shop")
	t.Setenv(EnvDriver, "mysql")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "mysql", cfg.Driver)
	require.Equal(t, "root@tcp(127.0.0.1:3306)/shop", cfg.DSN)

	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "mysql", cfg.Driver)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("advisor: [1, 2"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv(EnvDSN, "")
	t.Setenv(EnvDriver, "")
	cfg := Default()
	cfg.Driver = "postgres"
	cfg.Advisor.FastQueryThreshold = 10 * time.Millisecond
	path := filepath.Join(t.TempDir(), "nested", "advisor.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
