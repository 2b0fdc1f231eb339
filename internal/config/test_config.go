package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database = DatabaseConfig{
		Path:    ":memory:", // tests replace this with a temp file
		Timeout: 1 * time.Second,
	}
	cfg.Remote = RemoteConfig{
		BaseURL:     "http://127.0.0.1:0/v1",
		HTTPTimeout: 5 * time.Second,
		UserAgent:   "storykeep-test/1.0",
	}
	cfg.Cache.AppOrigin = "http://127.0.0.1:0"
	cfg.Sync.QueueSize = 2
	cfg.Sync.ProbeInterval = 50 * time.Millisecond
	cfg.Search.Enabled = false
	cfg.Search.IndexPath = ""
	cfg.Log = LogConfig{Level: "off", Format: "console"}
	return cfg
}
