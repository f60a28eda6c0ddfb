package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// GeminiProvider implements Provider for the Google Generative Language API.
type GeminiProvider struct {
	baseProvider

	mu     sync.RWMutex
	status ProviderStatus
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg *ProviderConfig) *GeminiProvider {
	return &GeminiProvider{
		baseProvider: newBaseProvider(cfg, "gemini"),
		status:       ProviderStatus{State: StateInitializing},
	}
}

// ModelInfo identifies the served model.
func (p *GeminiProvider) ModelInfo() ModelInfo {
	return ModelInfo{Name: p.config.Model, Provider: "gemini"}
}

// Status returns the last known state without probing.
func (p *GeminiProvider) Status() ProviderStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *GeminiProvider) setStatus(state ProviderState, reason string) {
	p.mu.Lock()
	p.status = ProviderStatus{State: state, Reason: reason}
	p.mu.Unlock()
}

// Initialize checks that an API key is configured.
func (p *GeminiProvider) Initialize(ctx context.Context) error {
	if p.config.APIKey == "" {
		p.setStatus(StateError, "API key not configured")
		return fmt.Errorf("initialize gemini provider: API key not configured")
	}
	p.setStatus(StateReady, "")
	return nil
}

// Cleanup releases provider resources.
func (p *GeminiProvider) Cleanup(ctx context.Context) error {
	p.client.CloseIdleConnections()
	return nil
}

// IsReady reports whether the provider is usable. Key presence is the gate;
// a live probe on every check would burn quota.
func (p *GeminiProvider) IsReady() bool {
	if p.config.APIKey == "" {
		p.setStatus(StateUnavailable, "API key not configured")
		return false
	}
	p.setStatus(StateReady, "")
	return true
}

// Generate produces a completion via the generateContent endpoint.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts *GenerationOptions) (string, error) {
	if p.config.APIKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}

	merged := p.mergeOptions(opts)

	genReq := geminiGenerateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
	}
	genReq.GenerationConfig.MaxOutputTokens = merged.MaxTokens
	genReq.GenerationConfig.Temperature = merged.Temperature
	genReq.GenerationConfig.TopP = merged.TopP
	genReq.GenerationConfig.StopSequences = merged.StopSequences

	body, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.Endpoint, p.config.Model)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Key goes in the header, not the URL, so it never lands in logs.
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return "", fmt.Errorf("gemini error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var genResp geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(genResp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// Gemini API types.
type geminiGenerateRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
		Temperature     float64  `json:"temperature,omitempty"`
		TopP            float64  `json:"topP,omitempty"`
		StopSequences   []string `json:"stopSequences,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
