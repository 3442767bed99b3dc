package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	setDefaults()

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"server.port", 8080},
		{"database.type", "sqlite"},
		{"database.dsn", "./data/migration-tracker.db"},
		{"sync.page_size", 100},
		{"sync.page_delay_ms", 1000},
		{"sync.allow_concurrent_runs", false},
		{"logging.level", "info"},
		{"logging.format", "json"},
		{"logging.max_size", 100},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := viper.Get(tt.key)
			if got != tt.expected {
				t.Errorf("setDefaults() for %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	currentDir, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(currentDir) }()

	tmpDir := t.TempDir()
	configContent := `
server:
  port: 9090
database:
  type: sqlite
  dsn: ./test.db
github:
  base_url: "https://ghes.example.com"
  token: "scheduled-token"
sync:
  page_size: 50
  page_delay_ms: 250
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(configContent), 0o600))
	require.NoError(t, os.Chdir(tmpDir))

	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "./test.db", cfg.Database.DSN)
	assert.Equal(t, "https://ghes.example.com", cfg.GitHub.BaseURL)
	assert.Equal(t, "scheduled-token", cfg.GitHub.Token)
	assert.Equal(t, 50, cfg.Sync.PageSize)
	assert.Equal(t, int64(250), cfg.Sync.PageDelay().Milliseconds())
	assert.Equal(t, 10, cfg.Sync.ProgressBatchSize, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	currentDir, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(currentDir) }()

	require.NoError(t, os.Chdir(t.TempDir()))

	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err, "Load() should succeed without config file")
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Sync.PageSize)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	currentDir, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(currentDir) }()

	require.NoError(t, os.Chdir(t.TempDir()))
	t.Setenv("MIGTRACK_SYNC_PAGE_SIZE", "25")

	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Sync.PageSize)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	currentDir, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(currentDir) }()

	tmpDir := t.TempDir()
	configsDir := filepath.Join(tmpDir, "configs")
	require.NoError(t, os.Mkdir(configsDir, 0o755))

	invalidYAML := `
server:
  port: not-a-number
  invalid yaml content [[[
`
	require.NoError(t, os.WriteFile(filepath.Join(configsDir, "config.yaml"), []byte(invalidYAML), 0o600))
	require.NoError(t, os.Chdir(tmpDir))

	viper.Reset()
	_, err = Load()
	assert.Error(t, err, "Load() expected error for invalid YAML")
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Type: "sqlite"},
			Sync:     SyncConfig{PageSize: 100, PageDelayMs: 0, ProgressBatchSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown database", mutate: func(c *Config) { c.Database.Type = "oracle" }, wantErr: true},
		{name: "zero page size", mutate: func(c *Config) { c.Sync.PageSize = 0 }, wantErr: true},
		{name: "page size above provider max", mutate: func(c *Config) { c.Sync.PageSize = 101 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.Sync.PageDelayMs = -1 }, wantErr: true},
		{name: "zero batch size", mutate: func(c *Config) { c.Sync.ProgressBatchSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGitHubConfigHasApp(t *testing.T) {
	assert.False(t, GitHubConfig{Token: "x"}.HasApp())
	assert.False(t, GitHubConfig{AppID: 1, AppPrivateKey: "key"}.HasApp())
	assert.True(t, GitHubConfig{AppID: 1, AppPrivateKey: "key", AppInstallationID: 2}.HasApp())
}

func TestLoadScheduleSeeds(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		seeds, err := LoadScheduleSeeds("")
		require.NoError(t, err)
		assert.Nil(t, seeds)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schedules.yaml")
		content := `
schedules:
  - enterprise: " acme "
    schedule: "0 0 * * *"
    enabled: true
  - enterprise: globex
    schedule: "*/30 * * * *"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		seeds, err := LoadScheduleSeeds(path)
		require.NoError(t, err)
		require.Len(t, seeds, 2)
		assert.Equal(t, "acme", seeds[0].Enterprise)
		assert.True(t, seeds[0].Enabled)
		assert.Equal(t, "*/30 * * * *", seeds[1].Schedule)
		assert.False(t, seeds[1].Enabled)
	})

	t.Run("duplicate enterprise", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schedules.yaml")
		content := `
schedules:
  - enterprise: acme
    schedule: "0 0 * * *"
  - enterprise: acme
    schedule: "0 1 * * *"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := LoadScheduleSeeds(path)
		assert.Error(t, err)
	})

	t.Run("missing schedule", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schedules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("schedules:\n  - enterprise: acme\n"), 0o600))

		_, err := LoadScheduleSeeds(path)
		assert.Error(t, err)
	})
}
