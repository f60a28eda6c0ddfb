package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/focusdeck/focusdeck/internal/logging"
)

// ErrNoHealthyProviders is returned when every registered provider is
// unavailable or over its failure threshold.
var ErrNoHealthyProviders = errors.New("no healthy providers available")

// ═══════════════════════════════════════════════════════════════════════════════
// HEALTH TRACKING
// ═══════════════════════════════════════════════════════════════════════════════

// ProviderHealth is the manager's view of one provider.
type ProviderHealth struct {
	Name                string        `json:"name"`
	State               ProviderState `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalFailures       int           `json:"total_failures"`
	TotalSuccesses      int           `json:"total_successes"`
	AvgLatencyMs        int64         `json:"avg_latency_ms"`
	LastError           string        `json:"last_error,omitempty"`
	LastChecked         time.Time     `json:"last_checked,omitempty"`
}

// ManagerConfig carries the switching policy and user preferences.
type ManagerConfig struct {
	// MaxConsecutiveFailures flips a provider to unavailable once reached
	MaxConsecutiveFailures int
	// HealthCheckTimeout bounds a single background probe
	HealthCheckTimeout time.Duration
	// HealthCheckInterval is the background monitor period
	HealthCheckInterval time.Duration
	// AutoFailoverEnabled allows automatic switching on failure
	AutoFailoverEnabled bool
	// RetryCooldown is the minimum wait before reprobing an unavailable provider
	RetryCooldown time.Duration

	// PrimaryProvider is tried first
	PrimaryProvider string
	// AutoSwitchAllowed permits moving off the primary at all
	AutoSwitchAllowed bool
	// Fallbacks is the user's ordered fallback list
	Fallbacks []string
}

// DefaultManagerConfig returns the stock switching policy.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConsecutiveFailures: 3,
		HealthCheckTimeout:     5 * time.Second,
		HealthCheckInterval:    30 * time.Second,
		AutoFailoverEnabled:    true,
		RetryCooldown:          time.Minute,
		PrimaryProvider:        "local",
		AutoSwitchAllowed:      true,
		Fallbacks:              []string{"gemini"},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ═══════════════════════════════════════════════════════════════════════════════

// Manager owns the registered providers, tracks their health, and picks the
// provider each request should use. All methods are safe for concurrent use.
// The lock is never held across a provider call.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	health    map[string]*ProviderHealth
	active    string
	cfg       ManagerConfig
	log       *logging.Logger
}

// NewManager creates a provider manager with the given policy.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = 5 * time.Second
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	return &Manager{
		providers: make(map[string]Provider),
		health:    make(map[string]*ProviderHealth),
		cfg:       cfg,
		log:       logging.WithComponent("ProviderManager"),
	}
}

// Register adds a provider under its model info name. The first registered
// provider, or the configured primary, becomes active.
func (m *Manager) Register(p Provider) error {
	name := p.ModelInfo().Provider
	if name == "" {
		return fmt.Errorf("provider has no name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	status := p.Status()
	h := &ProviderHealth{
		Name:  name,
		State: status.State,
	}
	switch status.State {
	case StateReady:
		h.LastChecked = time.Now().UTC()
	case StateError:
		h.ConsecutiveFailures = 1
		h.LastError = status.Reason
	}
	m.providers[name] = p
	m.health[name] = h

	if m.active == "" || name == m.cfg.PrimaryProvider {
		m.active = name
	}

	m.log.Info("registered provider %s (model %s)", name, p.ModelInfo().Name)
	return nil
}

// Get returns a registered provider by name.
func (m *Manager) Get(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	return p, ok
}

// Active returns the currently selected provider.
func (m *Manager) Active() (Provider, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[m.active], m.active
}

// Names returns the registered provider names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns a copy of a provider's health record.
func (m *Manager) Health(name string) (ProviderHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return *h, true
}

// HealthSnapshot returns copies of all health records, sorted by name.
func (m *Manager) HealthSnapshot() []ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProviderHealth, 0, len(m.health))
	for _, h := range m.health {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Switch changes the active provider and returns a user-facing message
// describing the change. Only a ready provider becomes active: an
// initializing provider is initialized first, and an unavailable or errored
// one leaves the current selection alone and returns guidance instead.
func (m *Manager) Switch(name string) (string, error) {
	m.mu.RLock()
	p, ok := m.providers[name]
	var state ProviderState
	var reason string
	if ok {
		state = m.health[name].State
		reason = m.health[name].LastError
	}
	timeout := m.cfg.HealthCheckTimeout
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("provider %q is not registered", name)
	}

	switch state {
	case StateReady:
		m.activate(name)
		return switchedMessage(name, p.ModelInfo().Name), nil
	case StateInitializing:
		initCtx, cancel := context.WithTimeout(context.Background(), timeout)
		err := p.Initialize(initCtx)
		cancel()
		if err != nil {
			m.mu.Lock()
			h := m.health[name]
			h.State = StateError
			h.LastError = err.Error()
			h.LastChecked = time.Now().UTC()
			m.mu.Unlock()
			return notReadyGuidance(name, err.Error()), nil
		}
		m.mu.Lock()
		h := m.health[name]
		h.State = StateReady
		h.LastError = ""
		h.LastChecked = time.Now().UTC()
		m.mu.Unlock()
		m.activate(name)
		return switchedMessage(name, p.ModelInfo().Name), nil
	default:
		if reason == "" {
			reason = p.Status().Reason
		}
		if reason == "" {
			reason = "not ready"
		}
		return notReadyGuidance(name, reason), nil
	}
}

func (m *Manager) activate(name string) {
	m.mu.Lock()
	m.active = name
	m.mu.Unlock()
	m.log.Info("switched active provider to %s", name)
}

func switchedMessage(name, model string) string {
	switch name {
	case "local":
		return fmt.Sprintf("Switched to the local model (%s). Responses stay on this machine and may be slower on first use while the model loads.", model)
	case "gemini":
		return fmt.Sprintf("Switched to Gemini (%s). Requests now go to Google's hosted API.", model)
	default:
		return fmt.Sprintf("Switched to provider %s.", name)
	}
}

func notReadyGuidance(name, reason string) string {
	switch name {
	case "local":
		return fmt.Sprintf("The local model isn't available right now (%s). You can switch to the cloud provider with \"use gemini\", or check that the local model server is running.", reason)
	case "gemini":
		return fmt.Sprintf("Gemini isn't available right now (%s). Check your API key in settings, or keep using the local model.", reason)
	default:
		return fmt.Sprintf("Provider %s is not available: %s", name, reason)
	}
}

// FindBest picks the provider a new request should use:
//  1. the primary, when ready with a clean failure record
//  2. the user's fallbacks in order, when ready and under the failure threshold
//  3. any ready provider under the threshold, in deterministic order
func (m *Manager) FindBest() (Provider, string, error) {
	m.mu.RLock()
	primary := m.cfg.PrimaryProvider
	fallbacks := append([]string(nil), m.cfg.Fallbacks...)
	m.mu.RUnlock()

	if p, ok := m.candidate(primary, true); ok {
		return p, primary, nil
	}

	for _, name := range fallbacks {
		if name == primary {
			continue
		}
		if p, ok := m.candidate(name, false); ok {
			return p, name, nil
		}
	}

	for _, name := range m.Names() {
		if name == primary {
			continue
		}
		if contains(fallbacks, name) {
			continue
		}
		if p, ok := m.candidate(name, false); ok {
			return p, name, nil
		}
	}

	return nil, "", ErrNoHealthyProviders
}

// candidate checks one provider against the selection rules. The readiness
// probe happens outside the manager lock.
func (m *Manager) candidate(name string, requireClean bool) (Provider, bool) {
	m.mu.RLock()
	p, ok := m.providers[name]
	var failures int
	var state ProviderState
	var lastChecked time.Time
	if ok {
		failures = m.health[name].ConsecutiveFailures
		state = m.health[name].State
		lastChecked = m.health[name].LastChecked
	}
	threshold := m.cfg.MaxConsecutiveFailures
	cooldown := m.cfg.RetryCooldown
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if requireClean && failures > 0 {
		return nil, false
	}
	if failures >= threshold {
		return nil, false
	}
	// An unavailable provider is not reprobed until the cooldown since its
	// last check has elapsed.
	if state == StateUnavailable && cooldown > 0 && time.Since(lastChecked) < cooldown {
		return nil, false
	}
	if !p.IsReady() {
		return nil, false
	}
	return p, true
}

// AttemptFailover finds a replacement for a failed provider. It returns
// ErrNoHealthyProviders when switching is disallowed by policy or no
// alternative is ready.
func (m *Manager) AttemptFailover(failed string) (Provider, string, error) {
	m.mu.RLock()
	allowed := m.cfg.AutoSwitchAllowed && m.cfg.AutoFailoverEnabled
	fallbacks := append([]string(nil), m.cfg.Fallbacks...)
	m.mu.RUnlock()

	if !allowed {
		return nil, "", ErrNoHealthyProviders
	}

	try := func(name string) (Provider, bool) {
		if name == failed {
			return nil, false
		}
		return m.candidate(name, false)
	}

	promote := func(p Provider, name string) (Provider, string, error) {
		m.mu.Lock()
		h := m.health[name]
		h.State = StateReady
		h.LastChecked = time.Now().UTC()
		m.active = name
		m.mu.Unlock()
		m.log.Warn("failing over from %s to %s", failed, name)
		return p, name, nil
	}

	for _, name := range fallbacks {
		if p, ok := try(name); ok {
			return promote(p, name)
		}
	}
	for _, name := range m.Names() {
		if contains(fallbacks, name) {
			continue
		}
		if p, ok := try(name); ok {
			return promote(p, name)
		}
	}

	return nil, "", ErrNoHealthyProviders
}

// RecordSuccess resets the failure streak and folds the observed latency into
// the running average.
func (m *Manager) RecordSuccess(name string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.health[name]
	if !ok {
		return
	}

	h.ConsecutiveFailures = 0
	h.TotalSuccesses++
	h.State = StateReady
	h.LastError = ""
	h.LastChecked = time.Now().UTC()

	ms := latency.Milliseconds()
	if h.AvgLatencyMs == 0 {
		h.AvgLatencyMs = ms
	} else {
		h.AvgLatencyMs = (h.AvgLatencyMs + ms) / 2
	}
}

// RecordFailure bumps the failure counters. Reaching the threshold flips the
// provider to unavailable; further failures keep it there rather than
// bouncing back to the error state.
func (m *Manager) RecordFailure(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.health[name]
	if !ok {
		return
	}

	h.ConsecutiveFailures++
	h.TotalFailures++
	if err != nil {
		h.LastError = err.Error()
	}
	h.LastChecked = time.Now().UTC()

	if h.ConsecutiveFailures >= m.cfg.MaxConsecutiveFailures {
		h.State = StateUnavailable
	} else if h.State != StateUnavailable {
		h.State = StateError
	}

	m.log.Warn("provider %s failure %d/%d: %v", name, h.ConsecutiveFailures, m.cfg.MaxConsecutiveFailures, err)
}

// RunHealthMonitor probes every provider on a fixed interval until ctx is
// cancelled. Probe failures update health but never propagate.
func (m *Manager) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every registered provider with a per-probe timeout.
func (m *Manager) checkAll(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	timeout := m.cfg.HealthCheckTimeout
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		p, ok := m.Get(name)
		if !ok {
			continue
		}

		m.mu.RLock()
		rec := m.health[name]
		inCooldown := rec.State == StateUnavailable && m.cfg.RetryCooldown > 0 &&
			time.Since(rec.LastChecked) < m.cfg.RetryCooldown
		m.mu.RUnlock()
		if inCooldown {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		ready := probeReady(probeCtx, p)
		cancel()

		m.mu.Lock()
		h := m.health[name]
		h.LastChecked = time.Now().UTC()
		if ready {
			h.State = StateReady
			h.ConsecutiveFailures = 0
			h.LastError = ""
		} else {
			h.State = StateUnavailable
			h.LastError = "Health check failed"
		}
		m.mu.Unlock()
	}
}

// probeReady runs IsReady in a goroutine so the monitor's timeout holds even
// when the provider's own probe misbehaves.
func probeReady(ctx context.Context, p Provider) bool {
	done := make(chan bool, 1)
	go func() {
		done <- p.IsReady()
	}()
	select {
	case <-ctx.Done():
		return false
	case ready := <-done:
		return ready
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
