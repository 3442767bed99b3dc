package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Cron     CronConfig     `mapstructure:"cron"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	MCP      MCPConfig      `mapstructure:"mcp"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Type                   string `mapstructure:"type"` // "sqlite", "postgres" or "sqlserver"
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
}

// GitHubConfig defines how the tracker talks to the migration provider.
// Token and the App fields are only used for unattended (scheduled) syncs;
// manual syncs carry their own credential.
type GitHubConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`

	AppID             int64  `mapstructure:"app_id"`
	AppPrivateKey     string `mapstructure:"app_private_key"` // file path or inline PEM
	AppInstallationID int64  `mapstructure:"app_installation_id"`

	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HasApp reports whether GitHub App credentials are fully configured
func (g GitHubConfig) HasApp() bool {
	return g.AppID > 0 && g.AppPrivateKey != "" && g.AppInstallationID > 0
}

// SyncConfig tunes the sync engine
type SyncConfig struct {
	PageSize               int  `mapstructure:"page_size"`
	PageDelayMs            int  `mapstructure:"page_delay_ms"`
	ProgressBatchSize      int  `mapstructure:"progress_batch_size"`
	AllowConcurrentRuns    bool `mapstructure:"allow_concurrent_runs"`
	AccessCacheTTLMinutes  int  `mapstructure:"access_cache_ttl_minutes"`
	StaleRunTimeoutMinutes int  `mapstructure:"stale_run_timeout_minutes"` // 0 disables the reaper
	ProgressBufferSize     int  `mapstructure:"progress_buffer_size"`
}

// PageDelay returns the fixed delay inserted between page requests
func (s SyncConfig) PageDelay() time.Duration {
	return time.Duration(s.PageDelayMs) * time.Millisecond
}

// AccessCacheTTL returns how long an access check result stays cached
func (s SyncConfig) AccessCacheTTL() time.Duration {
	return time.Duration(s.AccessCacheTTLMinutes) * time.Minute
}

// StaleRunTimeout returns the age after which an in-progress run is considered abandoned
func (s SyncConfig) StaleRunTimeout() time.Duration {
	return time.Duration(s.StaleRunTimeoutMinutes) * time.Minute
}

type CronConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputFile string `mapstructure:"output_file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from config.yaml, the environment and an optional .env file
func Load() (*Config, error) {
	// .env is optional; values already present in the environment win
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// sync.page_size -> MIGTRACK_SYNC_PAGE_SIZE
	viper.SetEnvPrefix("MIGTRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "./data/migration-tracker.db")
	viper.SetDefault("github.base_url", "https://api.github.com")
	viper.SetDefault("github.timeout_seconds", 30)
	viper.SetDefault("sync.page_size", 100)
	viper.SetDefault("sync.page_delay_ms", 1000)
	viper.SetDefault("sync.progress_batch_size", 10)
	viper.SetDefault("sync.allow_concurrent_runs", false)
	viper.SetDefault("sync.access_cache_ttl_minutes", 30)
	viper.SetDefault("sync.stale_run_timeout_minutes", 0)
	viper.SetDefault("sync.progress_buffer_size", 16)
	viper.SetDefault("cron.seed_file", "")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_file", "./logs/migration-tracker.log")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("mcp.enabled", false)
	viper.SetDefault("mcp.address", ":8081")
	viper.SetDefault("metrics.enabled", true)
}

// Validate checks settings that would otherwise fail deep inside a sync run
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "sqlserver", "mssql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 100 {
		return fmt.Errorf("sync.page_size must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.PageDelayMs < 0 {
		return fmt.Errorf("sync.page_delay_ms must not be negative")
	}
	if c.Sync.ProgressBatchSize <= 0 {
		return fmt.Errorf("sync.progress_batch_size must be positive")
	}
	return nil
}
