package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeProvider is a controllable Provider for manager tests.
type fakeProvider struct {
	name      string
	model     string
	ready     bool
	output    string
	err       error
	state     ProviderState
	reason    string
	initErr   error
	initCalls int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, opts *GenerationOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func (f *fakeProvider) IsReady() bool { return f.ready }

func (f *fakeProvider) Status() ProviderStatus {
	if f.state != "" {
		return ProviderStatus{State: f.state, Reason: f.reason}
	}
	if f.ready {
		return ProviderStatus{State: StateReady}
	}
	return ProviderStatus{State: StateUnavailable, Reason: f.reason}
}

func (f *fakeProvider) ModelInfo() ModelInfo {
	return ModelInfo{Name: f.model, Provider: f.name}
}

func (f *fakeProvider) Initialize(ctx context.Context) error {
	f.initCalls++
	if f.initErr != nil {
		return f.initErr
	}
	f.ready = true
	f.state = StateReady
	return nil
}

func (f *fakeProvider) Cleanup(ctx context.Context) error { return nil }

func newTestManager(t *testing.T, providers ...*fakeProvider) *Manager {
	t.Helper()
	m := NewManager(DefaultManagerConfig())
	for _, p := range providers {
		if err := m.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.name, err)
		}
	}
	return m
}

func TestRegister(t *testing.T) {
	m := newTestManager(t, &fakeProvider{name: "local", model: "llama3.2", ready: true})

	if _, ok := m.Get("local"); !ok {
		t.Fatal("local provider should be registered")
	}

	if err := m.Register(&fakeProvider{name: "local"}); err == nil {
		t.Error("duplicate registration should fail")
	}

	_, active := m.Active()
	if active != "local" {
		t.Errorf("active = %q, want local", active)
	}
}

func TestSwitchMessages(t *testing.T) {
	m := newTestManager(t,
		&fakeProvider{name: "local", model: "llama3.2", ready: true},
		&fakeProvider{name: "gemini", model: "gemini-1.5-flash", ready: true},
	)

	msg, err := m.Switch("gemini")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !strings.Contains(msg, "Gemini") || !strings.Contains(msg, "hosted") {
		t.Errorf("gemini switch message not tailored: %q", msg)
	}

	msg, err = m.Switch("local")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !strings.Contains(msg, "local model") || !strings.Contains(msg, "this machine") {
		t.Errorf("local switch message not tailored: %q", msg)
	}

	if _, err := m.Switch("mistral"); err == nil {
		t.Error("switching to an unregistered provider should fail")
	}

	_, active := m.Active()
	if active != "local" {
		t.Errorf("active = %q after failed switch, want local", active)
	}
}

func TestFindBestPrefersCleanPrimary(t *testing.T) {
	local := &fakeProvider{name: "local", ready: true}
	gemini := &fakeProvider{name: "gemini", ready: true}
	m := newTestManager(t, local, gemini)

	_, name, err := m.FindBest()
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if name != "local" {
		t.Errorf("FindBest = %q, want local", name)
	}
}

func TestFindBestSkipsBlemishedPrimary(t *testing.T) {
	local := &fakeProvider{name: "local", ready: true}
	gemini := &fakeProvider{name: "gemini", ready: true}
	m := newTestManager(t, local, gemini)

	// One failure disqualifies the primary from first pick but not fallbacks.
	m.RecordFailure("local", errors.New("timeout"))

	_, name, err := m.FindBest()
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if name != "gemini" {
		t.Errorf("FindBest = %q, want gemini", name)
	}
}

func TestFindBestNoHealthyProviders(t *testing.T) {
	local := &fakeProvider{name: "local", ready: false}
	gemini := &fakeProvider{name: "gemini", ready: false}
	m := newTestManager(t, local, gemini)

	_, _, err := m.FindBest()
	if !errors.Is(err, ErrNoHealthyProviders) {
		t.Errorf("expected ErrNoHealthyProviders, got %v", err)
	}
}

func TestFindBestSkipsProvidersOverThreshold(t *testing.T) {
	local := &fakeProvider{name: "local", ready: true}
	gemini := &fakeProvider{name: "gemini", ready: true}
	m := newTestManager(t, local, gemini)

	for i := 0; i < 3; i++ {
		m.RecordFailure("gemini", errors.New("boom"))
	}
	m.RecordFailure("local", errors.New("once"))

	// local has one failure (not clean, but under threshold); gemini is out.
	_, name, err := m.FindBest()
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if name != "local" {
		t.Errorf("FindBest = %q, want local", name)
	}
}

func TestAttemptFailover(t *testing.T) {
	local := &fakeProvider{name: "local", ready: true}
	gemini := &fakeProvider{name: "gemini", ready: true}
	m := newTestManager(t, local, gemini)

	_, name, err := m.AttemptFailover("local")
	if err != nil {
		t.Fatalf("AttemptFailover: %v", err)
	}
	if name != "gemini" {
		t.Errorf("failover target = %q, want gemini", name)
	}

	// Failover is a switch, not just a suggestion.
	_, active := m.Active()
	if active != "gemini" {
		t.Errorf("active = %q after failover, want gemini", active)
	}
	h, _ := m.Health("gemini")
	if h.State != StateReady {
		t.Errorf("failover target state = %s, want ready", h.State)
	}
}

func TestAttemptFailoverRespectsPolicy(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.AutoSwitchAllowed = false
	m := NewManager(cfg)
	if err := m.Register(&fakeProvider{name: "local", ready: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(&fakeProvider{name: "gemini", ready: true}); err != nil {
		t.Fatal(err)
	}

	_, _, err := m.AttemptFailover("local")
	if !errors.Is(err, ErrNoHealthyProviders) {
		t.Errorf("disabled auto-switch should report no healthy providers, got %v", err)
	}
}

func TestSwitchRefusesUnavailableProvider(t *testing.T) {
	m := newTestManager(t,
		&fakeProvider{name: "local", model: "llama3.2", ready: true},
		&fakeProvider{name: "gemini", model: "gemini-1.5-flash", ready: false, reason: "missing API key"},
	)

	msg, err := m.Switch("gemini")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !strings.Contains(msg, "API key") {
		t.Errorf("gemini guidance should mention the API key, got %q", msg)
	}
	if strings.Contains(msg, "Switched") {
		t.Errorf("unavailable provider must not report a switch: %q", msg)
	}

	_, active := m.Active()
	if active != "local" {
		t.Errorf("active = %q after refused switch, want local", active)
	}
}

func TestSwitchRefusesUnavailableLocalSuggestsCloud(t *testing.T) {
	m := newTestManager(t,
		&fakeProvider{name: "gemini", model: "gemini-1.5-flash", ready: true},
		&fakeProvider{name: "local", model: "llama3.2", ready: false, reason: "server not running"},
	)

	msg, err := m.Switch("local")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !strings.Contains(msg, "gemini") {
		t.Errorf("local guidance should suggest the cloud fallback, got %q", msg)
	}
}

func TestSwitchInitializesProvider(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", model: "gemini-1.5-flash", state: StateInitializing}
	m := newTestManager(t,
		&fakeProvider{name: "local", model: "llama3.2", ready: true},
		gemini,
	)

	msg, err := m.Switch("gemini")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if gemini.initCalls != 1 {
		t.Errorf("initialize calls = %d, want 1", gemini.initCalls)
	}
	if !strings.Contains(msg, "Switched") {
		t.Errorf("successful initialization should switch, got %q", msg)
	}
	_, active := m.Active()
	if active != "gemini" {
		t.Errorf("active = %q, want gemini", active)
	}
	h, _ := m.Health("gemini")
	if h.State != StateReady {
		t.Errorf("state = %s after initialization, want ready", h.State)
	}
}

func TestSwitchInitializationFailure(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", state: StateInitializing, initErr: errors.New("auth rejected")}
	m := newTestManager(t,
		&fakeProvider{name: "local", model: "llama3.2", ready: true},
		gemini,
	)

	msg, err := m.Switch("gemini")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !strings.Contains(msg, "auth rejected") {
		t.Errorf("guidance should carry the failure reason, got %q", msg)
	}

	_, active := m.Active()
	if active != "local" {
		t.Errorf("active = %q after failed initialization, want local", active)
	}
	h, _ := m.Health("gemini")
	if h.State != StateError {
		t.Errorf("state = %s after failed initialization, want error", h.State)
	}
}

func TestRegisterSeedsHealthFromStatus(t *testing.T) {
	m := newTestManager(t, &fakeProvider{name: "local", ready: true})

	h, _ := m.Health("local")
	if h.LastChecked.IsZero() {
		t.Error("ready provider should register with a check timestamp")
	}

	if err := m.Register(&fakeProvider{name: "gemini", state: StateError, reason: "bad key"}); err != nil {
		t.Fatal(err)
	}
	h, _ = m.Health("gemini")
	if h.ConsecutiveFailures != 1 {
		t.Errorf("errored provider consecutive failures = %d, want 1", h.ConsecutiveFailures)
	}
	if h.LastError != "bad key" {
		t.Errorf("errored provider last error = %q, want bad key", h.LastError)
	}
}

func TestFindBestHonorsRetryCooldown(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.RetryCooldown = time.Hour
	m := NewManager(cfg)
	local := &fakeProvider{name: "local", ready: false}
	if err := m.Register(local); err != nil {
		t.Fatal(err)
	}

	// Recently checked and unavailable: not reprobed yet, even though the
	// provider has recovered.
	local.ready = true
	m.mu.Lock()
	m.health["local"].LastChecked = time.Now().UTC()
	m.mu.Unlock()

	if _, _, err := m.FindBest(); !errors.Is(err, ErrNoHealthyProviders) {
		t.Errorf("provider inside cooldown should be skipped, got %v", err)
	}

	m.mu.Lock()
	m.health["local"].LastChecked = time.Now().UTC().Add(-2 * time.Hour)
	m.mu.Unlock()

	_, name, err := m.FindBest()
	if err != nil {
		t.Fatalf("FindBest after cooldown: %v", err)
	}
	if name != "local" {
		t.Errorf("FindBest = %q, want local", name)
	}
}

func TestHealthMonitorRecoversProvider(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.RetryCooldown = 0
	m := NewManager(cfg)
	local := &fakeProvider{name: "local", ready: true}
	if err := m.Register(local); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		m.RecordFailure("local", errors.New("boom"))
	}
	h, _ := m.Health("local")
	if h.State != StateUnavailable {
		t.Fatalf("state = %s before probe, want unavailable", h.State)
	}

	m.checkAll(context.Background())

	h, _ = m.Health("local")
	if h.State != StateReady {
		t.Errorf("state = %s after healthy probe, want ready", h.State)
	}
	if h.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d after healthy probe, want 0", h.ConsecutiveFailures)
	}
}

func TestRecordSuccessLatencyAverage(t *testing.T) {
	m := newTestManager(t, &fakeProvider{name: "local", ready: true})

	m.RecordSuccess("local", 100*time.Millisecond)
	h, _ := m.Health("local")
	if h.AvgLatencyMs != 100 {
		t.Errorf("first latency avg = %d, want 100", h.AvgLatencyMs)
	}

	m.RecordSuccess("local", 300*time.Millisecond)
	h, _ = m.Health("local")
	if h.AvgLatencyMs != 200 {
		t.Errorf("second latency avg = %d, want 200", h.AvgLatencyMs)
	}

	if h.TotalSuccesses != 2 {
		t.Errorf("total successes = %d, want 2", h.TotalSuccesses)
	}
}

func TestRecordFailureThreshold(t *testing.T) {
	m := newTestManager(t, &fakeProvider{name: "local", ready: true})

	m.RecordFailure("local", errors.New("e1"))
	m.RecordFailure("local", errors.New("e2"))
	h, _ := m.Health("local")
	if h.State != StateError {
		t.Errorf("state below threshold = %s, want error", h.State)
	}

	m.RecordFailure("local", errors.New("e3"))
	h, _ = m.Health("local")
	if h.State != StateUnavailable {
		t.Errorf("state at threshold = %s, want unavailable", h.State)
	}

	// Further failures must not bounce the state back to error.
	m.RecordFailure("local", errors.New("e4"))
	h, _ = m.Health("local")
	if h.State != StateUnavailable {
		t.Errorf("state past threshold = %s, want unavailable", h.State)
	}
	if h.TotalFailures != 4 {
		t.Errorf("total failures = %d, want 4", h.TotalFailures)
	}
}

func TestRecordSuccessResetsStreak(t *testing.T) {
	m := newTestManager(t, &fakeProvider{name: "local", ready: true})

	m.RecordFailure("local", errors.New("e1"))
	m.RecordFailure("local", errors.New("e2"))
	m.RecordSuccess("local", 50*time.Millisecond)

	h, _ := m.Health("local")
	if h.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d after success, want 0", h.ConsecutiveFailures)
	}
	if h.State != StateReady {
		t.Errorf("state = %s after success, want ready", h.State)
	}
	if h.TotalFailures != 2 {
		t.Errorf("total failures = %d, want 2", h.TotalFailures)
	}
}
