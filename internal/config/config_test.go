package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Timeout != 1*time.Second {
		t.Errorf("Database.Timeout = %v, want 1s", cfg.Database.Timeout)
	}
	if cfg.Remote.BaseURL != "https://story-api.dicoding.dev/v1" {
		t.Errorf("Remote.BaseURL = %s, want dicoding base URL", cfg.Remote.BaseURL)
	}
	if cfg.Remote.HTTPTimeout != 30*time.Second {
		t.Errorf("Remote.HTTPTimeout = %v, want 30s", cfg.Remote.HTTPTimeout)
	}
	if cfg.Remote.UserAgent == "" {
		t.Error("Remote.UserAgent should not be empty")
	}
	if cfg.Sync.RequeueFailed {
		t.Error("Sync.RequeueFailed should default to false")
	}
	if cfg.Sync.QueueSize <= 0 {
		t.Errorf("Sync.QueueSize = %d, want > 0", cfg.Sync.QueueSize)
	}
}

func TestCachePartitionNames(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.Cache.StaticName(); got != "storykeep-static-v1" {
		t.Errorf("StaticName() = %s, want storykeep-static-v1", got)
	}
	if got := cfg.Cache.DynamicName(); got != "storykeep-dynamic-v1" {
		t.Errorf("DynamicName() = %s, want storykeep-dynamic-v1", got)
	}

	cfg.Cache.Version = "v2"
	if got := cfg.Cache.StaticName(); got != "storykeep-static-v2" {
		t.Errorf("StaticName() after bump = %s, want storykeep-static-v2", got)
	}
}

func TestLoad_DefaultConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Sync.ProbeInterval != 15*time.Second {
		t.Errorf("Sync.ProbeInterval = %v, want 15s", cfg.Sync.ProbeInterval)
	}
	if cfg.Cache.Version != "v1" {
		t.Errorf("Cache.Version = %s, want v1", cfg.Cache.Version)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	configPath := filepath.Join(tmpDir, "test-config.toml")
	configContent := `
[database]
path = "/tmp/test.db"
timeout = "10s"

[remote]
base_url = "http://localhost:9999/v1"
http_timeout = "60s"
user_agent = "test-agent"

[cache]
version = "v7"

[sync]
requeue_failed = true
queue_size = 8
`

	if writeErr := os.WriteFile(configPath, []byte(configContent), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %s, want '/tmp/test.db'", cfg.Database.Path)
	}
	if cfg.Database.Timeout != 10*time.Second {
		t.Errorf("Database.Timeout = %v, want 10s", cfg.Database.Timeout)
	}
	if cfg.Remote.HTTPTimeout != 60*time.Second {
		t.Errorf("Remote.HTTPTimeout = %v, want 60s", cfg.Remote.HTTPTimeout)
	}
	if cfg.Remote.UserAgent != "test-agent" {
		t.Errorf("Remote.UserAgent = %s, want 'test-agent'", cfg.Remote.UserAgent)
	}
	if cfg.Cache.StaticName() != "storykeep-static-v7" {
		t.Errorf("Cache.StaticName() = %s, want storykeep-static-v7", cfg.Cache.StaticName())
	}
	if !cfg.Sync.RequeueFailed {
		t.Error("Sync.RequeueFailed = false, want true")
	}
	if cfg.Sync.QueueSize != 8 {
		t.Errorf("Sync.QueueSize = %d, want 8", cfg.Sync.QueueSize)
	}
	// untouched sections keep defaults
	if cfg.Gateway.Addr != "127.0.0.1:8787" {
		t.Errorf("Gateway.Addr = %s, want default", cfg.Gateway.Addr)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	t.Setenv("STORYKEEP_REMOTE_TOKEN", "env-token")
	t.Setenv("STORYKEEP_SYNC_REQUEUE_FAILED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Remote.Token != "env-token" {
		t.Errorf("Remote.Token = %q, want env-token", cfg.Remote.Token)
	}
	if !cfg.Sync.RequeueFailed {
		t.Error("Sync.RequeueFailed should be overridden by env")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	chdir(t, dir)

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("STORYKEEP_GATEWAY_ADDR=127.0.0.1:9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("STORYKEEP_GATEWAY_ADDR") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Addr != "127.0.0.1:9999" {
		t.Errorf("Gateway.Addr = %s, want value from .env", cfg.Gateway.Addr)
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	cfg := defaultConfig()
	cfg.Database.Path = "/test/path.db"
	cfg.Database.Timeout = 10 * time.Second
	cfg.Remote.UserAgent = "test-save-agent"
	cfg.Sync.ProbeInterval = 2 * time.Minute

	savePath := filepath.Join(tmpDir, "saved-config.toml")
	if saveErr := Save(cfg, savePath); saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	if _, statErr := os.Stat(savePath); os.IsNotExist(statErr) {
		t.Fatal("Save() did not create config file")
	}

	loaded, err := Load(savePath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.Database.Path != cfg.Database.Path {
		t.Errorf("Loaded Database.Path = %s, want %s", loaded.Database.Path, cfg.Database.Path)
	}
	if loaded.Remote.UserAgent != cfg.Remote.UserAgent {
		t.Errorf("Loaded Remote.UserAgent = %s, want %s", loaded.Remote.UserAgent, cfg.Remote.UserAgent)
	}
	if loaded.Sync.ProbeInterval != cfg.Sync.ProbeInterval {
		t.Errorf("Loaded Sync.ProbeInterval = %v, want %v", loaded.Sync.ProbeInterval, cfg.Sync.ProbeInterval)
	}
}

func TestGenerateDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	configPath := filepath.Join(tmpDir, "generated.toml")
	if genErr := GenerateDefaultConfig(configPath); genErr != nil {
		t.Fatalf("GenerateDefaultConfig() error = %v", genErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	if cfg.Cache.StaticPrefix != "storykeep-static" {
		t.Errorf("Generated config has Cache.StaticPrefix = %s, want storykeep-static", cfg.Cache.StaticPrefix)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	if got := expandPath("~/data/db"); got != filepath.Join(home, "data", "db") {
		t.Errorf("expandPath(~/data/db) = %s", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(\"\") = %q, want empty", got)
	}
	if got := expandPath("rel/file"); !filepath.IsAbs(got) {
		t.Errorf("expandPath(rel/file) = %s, want absolute", got)
	}
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	if cfg == nil {
		t.Fatal("TestConfig() returned nil")
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("TestConfig Database.Path = %s, want ':memory:'", cfg.Database.Path)
	}
	if cfg.Remote.UserAgent != "storykeep-test/1.0" {
		t.Errorf("TestConfig Remote.UserAgent = %s, want 'storykeep-test/1.0'", cfg.Remote.UserAgent)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
