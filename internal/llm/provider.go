// Package llm provides the language model provider layer for the FocusDeck
// assistant. It supports a local inference server (Ollama-compatible) and
// Google Gemini, with health tracking and automatic failover between them.
package llm

import (
	"context"
	"io"
	"net/http"
	"time"
)

// MaxErrorBodySize limits how much of an error response body is read (1MB).
// Prevents memory exhaustion from malformed error responses.
const MaxErrorBodySize = 1 * 1024 * 1024

// readLimitedBody reads up to maxBytes from r, returning the bytes read.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROVIDER INTERFACE
// ═══════════════════════════════════════════════════════════════════════════════

// ProviderState describes a provider's lifecycle state.
type ProviderState string

const (
	StateInitializing ProviderState = "initializing"
	StateReady        ProviderState = "ready"
	StateUnavailable  ProviderState = "unavailable"
	StateError        ProviderState = "error"
)

// ProviderStatus is the last known state of a provider plus the reason for it.
type ProviderStatus struct {
	State  ProviderState `json:"state"`
	Reason string        `json:"reason,omitempty"`
}

// ModelInfo identifies the model a provider serves.
type ModelInfo struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Version  string `json:"version,omitempty"`
}

// GenerationOptions tunes a single generation call. Stream is accepted for
// forward compatibility but always treated as false.
type GenerationOptions struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	StopSequences []string
	Stream        bool
}

// DefaultGenerationOptions returns the options used when the caller passes nil.
func DefaultGenerationOptions() *GenerationOptions {
	return &GenerationOptions{
		MaxTokens:   4096,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// Provider is a language model backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Generate produces a completion for the prompt.
	Generate(ctx context.Context, prompt string, opts *GenerationOptions) (string, error)

	// IsReady probes the backend with a short internal timeout.
	IsReady() bool

	// Status returns the last known state without probing.
	Status() ProviderStatus

	// ModelInfo identifies the served model.
	ModelInfo() ModelInfo

	// Initialize prepares the provider for use.
	Initialize(ctx context.Context) error

	// Cleanup releases provider resources.
	Cleanup(ctx context.Context) error
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROVIDER CONFIG
// ═══════════════════════════════════════════════════════════════════════════════

// ProviderConfig contains connection settings for a provider.
type ProviderConfig struct {
	// Name identifies the provider ("local" or "gemini")
	Name string

	// Endpoint is the API base URL
	Endpoint string

	// APIKey for authentication (hosted providers)
	APIKey string

	// Model is the default model to use
	Model string

	// MaxTokens default for responses
	MaxTokens int

	// Temperature default
	Temperature float64

	// Timeout for API calls
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for a provider.
func DefaultConfig(name string) *ProviderConfig {
	switch name {
	case "local":
		return &ProviderConfig{
			Name:        "local",
			Endpoint:    "http://127.0.0.1:11434",
			Model:       "llama3.2",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		}
	case "gemini":
		return &ProviderConfig{
			Name:        "gemini",
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta",
			Model:       "gemini-1.5-flash",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     time.Minute,
		}
	default:
		return &ProviderConfig{
			Name:        name,
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BASE PROVIDER (DRY helper for HTTP-based providers)
// ═══════════════════════════════════════════════════════════════════════════════

// baseProvider provides common functionality for HTTP-based providers.
type baseProvider struct {
	config *ProviderConfig
	client *http.Client
}

// newBaseProvider creates a new base provider with defaults applied.
func newBaseProvider(cfg *ProviderConfig, providerName string) baseProvider {
	if cfg == nil {
		cfg = DefaultConfig(providerName)
	}

	defaults := DefaultConfig(providerName)
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	cfg.Name = providerName

	return baseProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// mergeOptions fills unset option fields from the provider config.
func (b *baseProvider) mergeOptions(opts *GenerationOptions) *GenerationOptions {
	if opts == nil {
		opts = DefaultGenerationOptions()
	}
	merged := *opts
	if merged.MaxTokens == 0 {
		merged.MaxTokens = b.config.MaxTokens
	}
	if merged.Temperature == 0 {
		merged.Temperature = b.config.Temperature
	}
	// Streaming delivery is not supported; generation is always a single shot.
	merged.Stream = false
	return &merged
}
