package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Preferences.PrimaryProvider != "local" {
		t.Errorf("expected primary provider 'local', got '%s'", cfg.Preferences.PrimaryProvider)
	}

	if cfg.Providers.Local.Endpoint != "http://127.0.0.1:11434" {
		t.Errorf("expected local endpoint 'http://127.0.0.1:11434', got '%s'", cfg.Providers.Local.Endpoint)
	}

	if !cfg.Switching.AutoFailoverEnabled {
		t.Error("expected auto failover enabled by default")
	}

	if cfg.Switching.MaxConsecutiveFailures != 3 {
		t.Errorf("expected failure threshold 3, got %d", cfg.Switching.MaxConsecutiveFailures)
	}

	if cfg.Agent.MaxTurns != 5 {
		t.Errorf("expected max turns 5, got %d", cfg.Agent.MaxTurns)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".focusdeck", "config.yaml")

	// Load config (should create default)
	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	if cfg.Preferences.PrimaryProvider != "local" {
		t.Errorf("expected primary provider 'local', got '%s'", cfg.Preferences.PrimaryProvider)
	}

	// Load again to test reading existing file
	cfg2, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load existing config: %v", err)
	}

	if cfg2.Preferences.PrimaryProvider != cfg.Preferences.PrimaryProvider {
		t.Error("config values changed on reload")
	}
}

func TestSaveToPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".focusdeck", "config.yaml")

	cfg := Default()
	cfg.Preferences.PrimaryProvider = "gemini"
	cfg.Agent.MaxTurns = 7

	if err := cfg.SaveToPath(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}

	if loaded.Preferences.PrimaryProvider != "gemini" {
		t.Errorf("expected provider 'gemini', got '%s'", loaded.Preferences.PrimaryProvider)
	}

	if loaded.Agent.MaxTurns != 7 {
		t.Errorf("expected max turns 7, got %d", loaded.Agent.MaxTurns)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty primary", func(c *Config) { c.Preferences.PrimaryProvider = "" }, true},
		{"unknown primary", func(c *Config) { c.Preferences.PrimaryProvider = "gpt4" }, true},
		{"unknown fallback", func(c *Config) { c.Preferences.Fallbacks = []string{"mistral"} }, true},
		{"zero failure threshold", func(c *Config) { c.Switching.MaxConsecutiveFailures = 0 }, true},
		{"zero max turns", func(c *Config) { c.Agent.MaxTurns = 0 }, true},
		{"bad judge weights", func(c *Config) { c.Judge.EfficiencyWeight = 0.5 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	tempDir := t.TempDir()

	cfg := Default()
	cfg.Storage.DBPath = filepath.Join(tempDir, "data", "focusdeck.db")
	cfg.Logging.File = filepath.Join(tempDir, "logs", "assistant.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	for _, dir := range []string{filepath.Dir(cfg.Storage.DBPath), filepath.Dir(cfg.Logging.File)} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("directory %s was not created", dir)
		}
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	got := expandPath("~/x/y.db")
	want := filepath.Join(homeDir, "x", "y.db")
	if got != want {
		t.Errorf("expandPath() = %q, want %q", got, want)
	}

	if expandPath("/abs/path") != "/abs/path" {
		t.Error("absolute paths should pass through")
	}
}
