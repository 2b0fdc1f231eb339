package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Search   SearchConfig   `mapstructure:"search"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RemoteConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	// Token, when set, takes precedence over the token saved by login.
	Token string `mapstructure:"token"`
}

type CacheConfig struct {
	Version       string `mapstructure:"version"`
	StaticPrefix  string `mapstructure:"static_prefix"`
	DynamicPrefix string `mapstructure:"dynamic_prefix"`
	MaxAssetSize  int64  `mapstructure:"max_asset_size"`
	// Manifest replaces the embedded static asset list when non-empty.
	Manifest string `mapstructure:"manifest"`
	// AppOrigin is the origin the application shell and its assets live on.
	AppOrigin string `mapstructure:"app_origin"`
}

// StaticName is the static partition name for the configured version.
func (c CacheConfig) StaticName() string {
	return c.StaticPrefix + "-" + c.Version
}

// DynamicName is the dynamic partition name for the configured version.
func (c CacheConfig) DynamicName() string {
	return c.DynamicPrefix + "-" + c.Version
}

type SyncConfig struct {
	QueueSize     int           `mapstructure:"queue_size"`
	RequeueFailed bool          `mapstructure:"requeue_failed"`
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type SearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IndexPath string `mapstructure:"index_path"`
}

type GatewayConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".storykeep")

	return &Config{
		Database: DatabaseConfig{
			Path:    filepath.Join(dataDir, "storykeep.db"),
			Timeout: 1 * time.Second,
		},
		Remote: RemoteConfig{
			BaseURL:     "https://story-api.dicoding.dev/v1",
			HTTPTimeout: 30 * time.Second,
			UserAgent:   "storykeep/1.0 (https://github.com/pders01/storykeep)",
		},
		Cache: CacheConfig{
			Version:       "v1",
			StaticPrefix:  "storykeep-static",
			DynamicPrefix: "storykeep-dynamic",
			MaxAssetSize:  5 << 20,
			AppOrigin:     "http://localhost:8080",
		},
		Sync: SyncConfig{
			QueueSize:     4,
			RequeueFailed: false,
			ProbeInterval: 15 * time.Second,
		},
		Search: SearchConfig{
			Enabled:   true,
			IndexPath: filepath.Join(dataDir, "index.bleve"),
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8787",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Path:   filepath.Join(dataDir, "storykeep.log"),
		},
	}
}

// Load reads configuration from configPath, or from the default locations
// when it is empty. A .env file in the working directory is loaded first so
// STORYKEEP_* variables defined there apply.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "storykeep")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STORYKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	return &config, nil
}

// setDefaults registers every leaf key so AutomaticEnv can override any of
// them, e.g. STORYKEEP_REMOTE_TOKEN or STORYKEEP_SYNC_REQUEUE_FAILED.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.timeout", cfg.Database.Timeout)

	v.SetDefault("remote.base_url", cfg.Remote.BaseURL)
	v.SetDefault("remote.http_timeout", cfg.Remote.HTTPTimeout)
	v.SetDefault("remote.user_agent", cfg.Remote.UserAgent)
	v.SetDefault("remote.token", cfg.Remote.Token)

	v.SetDefault("cache.version", cfg.Cache.Version)
	v.SetDefault("cache.static_prefix", cfg.Cache.StaticPrefix)
	v.SetDefault("cache.dynamic_prefix", cfg.Cache.DynamicPrefix)
	v.SetDefault("cache.max_asset_size", cfg.Cache.MaxAssetSize)
	v.SetDefault("cache.manifest", cfg.Cache.Manifest)
	v.SetDefault("cache.app_origin", cfg.Cache.AppOrigin)

	v.SetDefault("sync.queue_size", cfg.Sync.QueueSize)
	v.SetDefault("sync.requeue_failed", cfg.Sync.RequeueFailed)
	v.SetDefault("sync.probe_url", cfg.Sync.ProbeURL)
	v.SetDefault("sync.probe_interval", cfg.Sync.ProbeInterval)

	v.SetDefault("search.enabled", cfg.Search.Enabled)
	v.SetDefault("search.index_path", cfg.Search.IndexPath)

	v.SetDefault("gateway.addr", cfg.Gateway.Addr)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.path", cfg.Log.Path)
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Search.IndexPath = expandPath(cfg.Search.IndexPath)
	cfg.Log.Path = expandPath(cfg.Log.Path)
	cfg.Cache.Manifest = expandPath(cfg.Cache.Manifest)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations are written as strings for TOML readability
	v.Set("database", map[string]interface{}{
		"path":    config.Database.Path,
		"timeout": config.Database.Timeout.String(),
	})
	v.Set("remote", map[string]interface{}{
		"base_url":     config.Remote.BaseURL,
		"http_timeout": config.Remote.HTTPTimeout.String(),
		"user_agent":   config.Remote.UserAgent,
		"token":        config.Remote.Token,
	})
	v.Set("cache", map[string]interface{}{
		"version":        config.Cache.Version,
		"static_prefix":  config.Cache.StaticPrefix,
		"dynamic_prefix": config.Cache.DynamicPrefix,
		"max_asset_size": config.Cache.MaxAssetSize,
		"manifest":       config.Cache.Manifest,
		"app_origin":     config.Cache.AppOrigin,
	})
	v.Set("sync", map[string]interface{}{
		"queue_size":     config.Sync.QueueSize,
		"requeue_failed": config.Sync.RequeueFailed,
		"probe_url":      config.Sync.ProbeURL,
		"probe_interval": config.Sync.ProbeInterval.String(),
	})
	v.Set("search", map[string]interface{}{
		"enabled":    config.Search.Enabled,
		"index_path": config.Search.IndexPath,
	})
	v.Set("gateway", map[string]interface{}{
		"addr": config.Gateway.Addr,
	})
	v.Set("log", map[string]interface{}{
		"level":  config.Log.Level,
		"format": config.Log.Format,
		"path":   config.Log.Path,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
