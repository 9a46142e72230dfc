package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Ledger.Backend)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, "quill.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "audit.jsonl"), cfg.Logging.AuditFile)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"ai": {"profiles": [{"id": "main", "provider": "openai", "api_key": "sk-test", "priority": 1}]},
			"agent": {"model": "gpt-4o", "max_tool_rounds": 4},
			"ledger": {"backend": "sqlite", "dsn": "file:ledger.db", "prefixes": {"campaign": "CAM"}},
			"tenants": [{"id": "acme", "archive_parent_id": "db_acme", "send_schedule": "0 9 * * 4"}],
			"default_tenant": "acme"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", cfg.Agent.Model)
		assert.Equal(t, 4, cfg.Agent.MaxToolRounds)
		assert.Equal(t, 60, cfg.Agent.RunTimeoutSeconds)
		assert.Equal(t, "sqlite", cfg.Ledger.Backend)
		assert.Equal(t, "CAM", cfg.Ledger.Prefixes["campaign"])
		require.Len(t, cfg.AI.Profiles, 1)
		assert.Equal(t, "openai", cfg.AI.Profiles[0].Provider)
		require.Len(t, cfg.Tenants, 1)
		assert.Equal(t, "db_acme", cfg.Tenants[0].ArchiveParentID)
		assert.Equal(t, "acme", cfg.DefaultTenant)
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "info"}}`), 0644))
		t.Setenv("QUILL_LOGGING_LEVEL", "debug")
		t.Setenv("QUILL_LEDGER_BACKEND", "redis")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "redis", cfg.Ledger.Backend)
	})

	t.Run("invalid json", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"agent": `), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "quill.json")
	loader := NewLoader(configPath)

	cfg := validConfig()
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "acme", loaded.DefaultTenant)
	assert.Equal(t, "sk-ant-test123", loaded.AI.Profiles[0].APIKey)
	assert.Equal(t, "0 9 * * 4", loaded.Tenants[0].SendSchedule)
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("explicit path wins", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "/env/quill.json")
		assert.Equal(t, "/explicit.json", NewLoader("/explicit.json").GetConfigPath())
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "/env/quill.json")
		assert.Equal(t, "/env/quill.json", NewLoader("").GetConfigPath())
	})

	t.Run("home default", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "")
		home := t.TempDir()
		t.Setenv("HOME", home)
		assert.Equal(t, filepath.Join(home, ".quill", "quill.json"), NewLoader("").GetConfigPath())
	})
}
