package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the FocusDeck assistant runtime.
// It is loaded from ~/.focusdeck/config.yaml and can be overridden by
// FOCUSDECK_* environment variables.
type Config struct {
	Providers   ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Switching   SwitchingPolicy `mapstructure:"switching" yaml:"switching"`
	Preferences Preferences     `mapstructure:"preferences" yaml:"preferences"`
	Agent       AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Judge       JudgeConfig     `mapstructure:"judge" yaml:"judge"`
	Storage     StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Logging     LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ProvidersConfig holds the per-provider connection settings.
type ProvidersConfig struct {
	Local  LocalProviderConfig  `mapstructure:"local" yaml:"local"`
	Gemini GeminiProviderConfig `mapstructure:"gemini" yaml:"gemini"`
}

// LocalProviderConfig configures the local inference server provider.
type LocalProviderConfig struct {
	// Endpoint is the base URL of the local inference server
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Model is the model name requested on each generation
	Model string `mapstructure:"model" yaml:"model"`
	// TimeoutSec bounds a single generation call
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// GeminiProviderConfig configures the hosted Gemini provider.
type GeminiProviderConfig struct {
	// APIKey authenticates against the Generative Language API
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the Gemini model identifier
	Model string `mapstructure:"model" yaml:"model"`
	// TimeoutSec bounds a single generation call
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// SwitchingPolicy governs automatic provider failover and health checking.
type SwitchingPolicy struct {
	// MaxConsecutiveFailures flips a provider to unavailable once reached
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	// HealthCheckTimeoutSec bounds a single health probe
	HealthCheckTimeoutSec int `mapstructure:"health_check_timeout_sec" yaml:"health_check_timeout_sec"`
	// HealthCheckIntervalSec is the period of the background health monitor
	HealthCheckIntervalSec int `mapstructure:"health_check_interval_sec" yaml:"health_check_interval_sec"`
	// AutoFailoverEnabled allows the manager to switch providers on failure
	AutoFailoverEnabled bool `mapstructure:"auto_failover_enabled" yaml:"auto_failover_enabled"`
	// FallbackOrder is consulted when the primary provider is unhealthy
	FallbackOrder []string `mapstructure:"fallback_order" yaml:"fallback_order"`
	// RetryCooldownSec is the minimum wait before retrying an unavailable provider
	RetryCooldownSec int `mapstructure:"retry_cooldown_sec" yaml:"retry_cooldown_sec"`
}

// Preferences holds the user's provider preferences.
type Preferences struct {
	// PrimaryProvider is tried first when no per-request preference is set
	PrimaryProvider string `mapstructure:"primary_provider" yaml:"primary_provider"`
	// AutoSwitchAllowed permits the runtime to move off the primary provider
	AutoSwitchAllowed bool `mapstructure:"auto_switch_allowed" yaml:"auto_switch_allowed"`
	// Fallbacks is the user's ordered fallback list
	Fallbacks []string `mapstructure:"fallbacks" yaml:"fallbacks"`
	// MaxLatencyMs is advisory; providers above it rank lower (0 = ignore)
	MaxLatencyMs int `mapstructure:"max_latency_ms" yaml:"max_latency_ms"`
}

// AgentConfig controls the reasoning loop.
type AgentConfig struct {
	// MaxIterations is the outer cap on reasoning turns per request
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// MaxTurns is the per-call default turn budget; the smaller of the two wins
	MaxTurns int `mapstructure:"max_turns" yaml:"max_turns"`
}

// JudgeConfig holds the evaluation criteria weights. Weights must sum to 1.
type JudgeConfig struct {
	ReasoningWeight    float64 `mapstructure:"reasoning_weight" yaml:"reasoning_weight"`
	ToolUsageWeight    float64 `mapstructure:"tool_usage_weight" yaml:"tool_usage_weight"`
	RelevanceWeight    float64 `mapstructure:"relevance_weight" yaml:"relevance_weight"`
	CompletenessWeight float64 `mapstructure:"completeness_weight" yaml:"completeness_weight"`
	EfficiencyWeight   float64 `mapstructure:"efficiency_weight" yaml:"efficiency_weight"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	// DBPath is the path to the assistant database
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error"
	Level string `mapstructure:"level" yaml:"level"`
	// File is the optional persistent log file
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".focusdeck")

	return &Config{
		Providers: ProvidersConfig{
			Local: LocalProviderConfig{
				Endpoint:   "http://127.0.0.1:11434",
				Model:      "llama3.2",
				TimeoutSec: 120,
			},
			Gemini: GeminiProviderConfig{
				APIKey:     "",
				Model:      "gemini-1.5-flash",
				TimeoutSec: 60,
			},
		},
		Switching: SwitchingPolicy{
			MaxConsecutiveFailures: 3,
			HealthCheckTimeoutSec:  5,
			HealthCheckIntervalSec: 30,
			AutoFailoverEnabled:    true,
			FallbackOrder:          []string{"local", "gemini"},
			RetryCooldownSec:       60,
		},
		Preferences: Preferences{
			PrimaryProvider:   "local",
			AutoSwitchAllowed: true,
			Fallbacks:         []string{"gemini"},
			MaxLatencyMs:      0,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			MaxTurns:      5,
		},
		Judge: JudgeConfig{
			ReasoningWeight:    0.25,
			ToolUsageWeight:    0.20,
			RelevanceWeight:    0.25,
			CompletenessWeight: 0.20,
			EfficiencyWeight:   0.10,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(dataDir, "focusdeck.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "assistant.log"),
		},
	}
}

// Load reads configuration from the default location (~/.focusdeck/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".focusdeck", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: FOCUSDECK_PROVIDERS_GEMINI_API_KEY
	v.SetEnvPrefix("FOCUSDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".focusdeck", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// GetDataDir returns the FocusDeck data directory path (~/.focusdeck).
func (c *Config) GetDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".focusdeck")
}

// EnsureDirectories creates all directories the runtime writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.GetDataDir(),
		filepath.Dir(c.Logging.File),
		filepath.Dir(c.Storage.DBPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	validProviders := map[string]bool{"local": true, "gemini": true}

	if c.Preferences.PrimaryProvider == "" {
		return fmt.Errorf("preferences.primary_provider cannot be empty")
	}
	if !validProviders[c.Preferences.PrimaryProvider] {
		return fmt.Errorf("unknown primary provider '%s', must be 'local' or 'gemini'", c.Preferences.PrimaryProvider)
	}
	for _, name := range c.Preferences.Fallbacks {
		if !validProviders[name] {
			return fmt.Errorf("unknown fallback provider '%s'", name)
		}
	}
	for _, name := range c.Switching.FallbackOrder {
		if !validProviders[name] {
			return fmt.Errorf("unknown provider '%s' in switching.fallback_order", name)
		}
	}

	if c.Switching.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("switching.max_consecutive_failures must be at least 1")
	}
	if c.Switching.HealthCheckIntervalSec < 1 {
		return fmt.Errorf("switching.health_check_interval_sec must be at least 1")
	}

	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1")
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be at least 1")
	}

	sum := c.Judge.ReasoningWeight + c.Judge.ToolUsageWeight + c.Judge.RelevanceWeight +
		c.Judge.CompletenessWeight + c.Judge.EfficiencyWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("judge weights must sum to 1.0, got %.3f", sum)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
