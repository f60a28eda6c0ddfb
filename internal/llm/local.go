package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// LocalProvider implements Provider for an Ollama-compatible local inference
// server. Cold starts are common: the first generation after idle may block
// while the model loads, so the default timeout is generous.
type LocalProvider struct {
	baseProvider

	mu     sync.RWMutex
	status ProviderStatus
}

// LocalOption is a functional option for configuring LocalProvider.
type LocalOption func(*LocalProvider)

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) LocalOption {
	return func(p *LocalProvider) {
		p.config.Timeout = d
		p.client.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) LocalOption {
	return func(p *LocalProvider) {
		p.client = c
	}
}

// NewLocalProvider creates a provider for a local inference server.
func NewLocalProvider(cfg *ProviderConfig, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		baseProvider: newBaseProvider(cfg, "local"),
		status:       ProviderStatus{State: StateInitializing},
	}

	// Remote endpoints need longer timeouts for network latency and queueing.
	if isRemoteEndpoint(p.config.Endpoint) && p.config.Timeout < 5*time.Minute {
		p.config.Timeout = 5 * time.Minute
		p.client.Timeout = p.config.Timeout
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// isRemoteEndpoint checks if the endpoint is a remote server (not localhost).
func isRemoteEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return false
	}
	if host == "host.docker.internal" || host == "docker.for.mac.localhost" {
		return false
	}
	return true
}

// ModelInfo identifies the served model.
func (p *LocalProvider) ModelInfo() ModelInfo {
	return ModelInfo{Name: p.config.Model, Provider: "local"}
}

// Status returns the last known state without probing.
func (p *LocalProvider) Status() ProviderStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *LocalProvider) setStatus(state ProviderState, reason string) {
	p.mu.Lock()
	p.status = ProviderStatus{State: state, Reason: reason}
	p.mu.Unlock()
}

// Initialize verifies the server is reachable and serves at least one model.
func (p *LocalProvider) Initialize(ctx context.Context) error {
	if err := p.probe(ctx); err != nil {
		p.setStatus(StateError, err.Error())
		return fmt.Errorf("initialize local provider: %w", err)
	}
	p.setStatus(StateReady, "")
	return nil
}

// Cleanup releases provider resources.
func (p *LocalProvider) Cleanup(ctx context.Context) error {
	p.client.CloseIdleConnections()
	return nil
}

// IsReady probes the server with a short internal timeout. An endpoint with
// zero models is not useful as a backend and reports not ready.
func (p *LocalProvider) IsReady() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.probe(ctx); err != nil {
		p.setStatus(StateUnavailable, err.Error())
		return false
	}
	p.setStatus(StateReady, "")
	return true
}

func (p *LocalProvider) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode tags response: %w", err)
	}
	if len(result.Models) == 0 {
		return fmt.Errorf("no models installed")
	}
	return nil
}

// Generate produces a completion via the /api/generate endpoint.
func (p *LocalProvider) Generate(ctx context.Context, prompt string, opts *GenerationOptions) (string, error) {
	merged := p.mergeOptions(opts)

	genReq := localGenerateRequest{
		Model:  p.config.Model,
		Prompt: prompt,
		Stream: false,
	}
	genReq.Options.Temperature = merged.Temperature
	genReq.Options.NumPredict = merged.MaxTokens
	genReq.Options.TopP = merged.TopP
	genReq.Options.Stop = merged.StopSequences

	body, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return "", fmt.Errorf("local server error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var genResp localGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return genResp.Response, nil
}

// Local server API types.
type localGenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64  `json:"temperature,omitempty"`
		NumPredict  int      `json:"num_predict,omitempty"`
		TopP        float64  `json:"top_p,omitempty"`
		Stop        []string `json:"stop,omitempty"`
	} `json:"options"`
}

type localGenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count,omitempty"`
}
