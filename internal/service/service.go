// Package service wires the assistant runtime together: provider manager,
// tool registry, reasoning loop, execution log and judge, exposed as one
// message-processing API.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/focusdeck/focusdeck/internal/agent"
	"github.com/focusdeck/focusdeck/internal/config"
	"github.com/focusdeck/focusdeck/internal/execlog"
	"github.com/focusdeck/focusdeck/internal/judge"
	"github.com/focusdeck/focusdeck/internal/llm"
	"github.com/focusdeck/focusdeck/internal/logging"
	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/internal/tools"
	"github.com/focusdeck/focusdeck/pkg/types"
)

// maxAttempts bounds failover rounds for one request.
const maxAttempts = 3

// Repositories bundles the persistence interfaces the service needs.
type Repositories struct {
	Tasks  storage.TaskRepository
	Timers storage.TimeTrackingRepository
	Logs   storage.LogRepository
}

// Service is the assembled assistant runtime.
type Service struct {
	manager      *llm.Manager
	registry     *tools.Registry
	orchestrator *agent.Orchestrator
	execLog      *execlog.Log
	judge        *judge.Judge
	repos        Repositories
	log          *logging.Logger
}

// New assembles a service from already-built components.
func New(manager *llm.Manager, registry *tools.Registry, orch *agent.Orchestrator, execLog *execlog.Log, j *judge.Judge, repos Repositories) *Service {
	return &Service{
		manager:      manager,
		registry:     registry,
		orchestrator: orch,
		execLog:      execLog,
		judge:        j,
		repos:        repos,
		log:          logging.WithComponent("service"),
	}
}

// Build assembles the full runtime from configuration and repositories:
// providers, manager, registry with the standard tool set, orchestrator,
// execution log and judge.
func Build(cfg *config.Config, repos Repositories) *Service {
	manager := llm.NewManager(llm.ManagerConfig{
		MaxConsecutiveFailures: cfg.Switching.MaxConsecutiveFailures,
		HealthCheckTimeout:     time.Duration(cfg.Switching.HealthCheckTimeoutSec) * time.Second,
		HealthCheckInterval:    time.Duration(cfg.Switching.HealthCheckIntervalSec) * time.Second,
		AutoFailoverEnabled:    cfg.Switching.AutoFailoverEnabled,
		RetryCooldown:          time.Duration(cfg.Switching.RetryCooldownSec) * time.Second,
		PrimaryProvider:        cfg.Preferences.PrimaryProvider,
		AutoSwitchAllowed:      cfg.Preferences.AutoSwitchAllowed,
		Fallbacks:              cfg.Preferences.Fallbacks,
	})

	local := llm.NewLocalProvider(&llm.ProviderConfig{
		Name:     "local",
		Endpoint: cfg.Providers.Local.Endpoint,
		Model:    cfg.Providers.Local.Model,
		Timeout:  time.Duration(cfg.Providers.Local.TimeoutSec) * time.Second,
	})
	manager.Register(local)

	if cfg.Providers.Gemini.APIKey != "" {
		gemini := llm.NewGeminiProvider(&llm.ProviderConfig{
			Name:    "gemini",
			APIKey:  cfg.Providers.Gemini.APIKey,
			Model:   cfg.Providers.Gemini.Model,
			Timeout: time.Duration(cfg.Providers.Gemini.TimeoutSec) * time.Second,
		})
		manager.Register(gemini)
	}

	execLog := execlog.New(repos.Logs, execlog.Config{})

	registry := tools.NewRegistry(tools.WithRecorder(execLog))
	registry.Register(tools.NewGetTasksTool(repos.Tasks))
	registry.Register(tools.NewCreateTaskTool(repos.Tasks))
	registry.Register(tools.NewUpdateTaskTool(repos.Tasks))
	registry.Register(tools.NewStartTimerTool(repos.Timers))
	registry.Register(tools.NewStopTimerTool(repos.Timers))
	registry.Register(tools.NewTimerStatusTool(repos.Timers))
	registry.Register(tools.NewAnalyzeProductivityTool(repos.Timers, repos.Tasks))

	orch := agent.New(registry, &agent.Config{
		MaxTurns: effectiveTurns(cfg.Agent),
	})

	j := judge.New(judge.Criteria{
		Reasoning:    cfg.Judge.ReasoningWeight,
		ToolUsage:    cfg.Judge.ToolUsageWeight,
		Relevance:    cfg.Judge.RelevanceWeight,
		Completeness: cfg.Judge.CompletenessWeight,
		Efficiency:   cfg.Judge.EfficiencyWeight,
	})

	return New(manager, registry, orch, execLog, j, repos)
}

// effectiveTurns reconciles the outer iteration cap with the per-call turn
// budget: the smaller positive value wins.
func effectiveTurns(cfg config.AgentConfig) int {
	turns := cfg.MaxTurns
	if turns <= 0 {
		turns = agent.DefaultMaxTurns
	}
	if cfg.MaxIterations > 0 && cfg.MaxIterations < turns {
		turns = cfg.MaxIterations
	}
	return turns
}

// Manager exposes the provider manager for CLI surfaces.
func (s *Service) Manager() *llm.Manager { return s.manager }

// Registry exposes the tool registry.
func (s *Service) Registry() *tools.Registry { return s.registry }

// Tracker exposes the in-memory execution statistics.
func (s *Service) Tracker() *execlog.PerformanceTracker { return s.execLog.Tracker() }

// StartHealthMonitor runs the provider health monitor until ctx is done.
func (s *Service) StartHealthMonitor(ctx context.Context) {
	go s.manager.RunHealthMonitor(ctx)
}

// ═══════════════════════════════════════════════════════════════════════════════
// MESSAGE PROCESSING
// ═══════════════════════════════════════════════════════════════════════════════

// ProcessMessage runs one request end to end: validation, provider selection,
// the reasoning loop with failover, and response assembly. The returned
// response metadata always carries provider, timestamp, total_time_ms and
// llm_time_ms.
func (s *Service) ProcessMessage(ctx context.Context, req types.Request) (*types.Response, *types.Trace, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	started := time.Now()
	provider, name, err := s.selectProvider(req.ModelPreference)
	if err != nil {
		return nil, nil, err
	}

	var trace *types.Trace
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		runStart := time.Now()
		trace, err = s.orchestrator.Run(ctx, provider, req)
		runDuration := time.Since(runStart)

		if err == nil {
			llmTime := llmShare(trace, runDuration)
			s.manager.RecordSuccess(name, llmTime)
			return s.buildResponse(req, trace, provider, name, started, llmTime), trace, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, trace, err
		}

		s.log.Warn("Provider %s failed on attempt %d: %v", name, attempt, err)
		s.manager.RecordFailure(name, err)

		next, nextName, foErr := s.manager.AttemptFailover(name)
		if foErr != nil {
			break
		}
		provider, name = next, nextName
	}

	s.log.Error("Request in session %s exhausted all providers: %v", req.SessionID, err)
	return nil, trace, types.NewProviderUnavailable(
		fmt.Sprintf("all providers failed; last error: %v", err))
}

// Evaluate scores a completed trace with the active provider as judge.
func (s *Service) Evaluate(ctx context.Context, trace *types.Trace) (*judge.Evaluation, error) {
	provider, _, err := s.selectProvider("")
	if err != nil {
		return nil, err
	}
	return s.judge.Evaluate(ctx, provider, trace)
}

// selectProvider resolves a per-request preference, or falls back to the
// manager's selection ladder.
func (s *Service) selectProvider(preference string) (llm.Provider, string, error) {
	if preference != "" {
		p, ok := s.manager.Get(preference)
		if !ok {
			return nil, "", types.NewProviderUnavailable(
				fmt.Sprintf("preferred provider %q is not registered", preference))
		}
		if !p.IsReady() {
			return nil, "", types.NewProviderUnavailable(
				fmt.Sprintf("preferred provider %q is not ready", preference))
		}
		return p, preference, nil
	}

	p, name, err := s.manager.FindBest()
	if err != nil {
		return nil, "", types.NewProviderUnavailable(err.Error())
	}
	return p, name, nil
}

// llmShare estimates time spent inside the model: the loop duration minus
// time measured inside tools.
func llmShare(trace *types.Trace, total time.Duration) time.Duration {
	var toolMs int64
	for _, step := range trace.StepsOfKind(types.StepObservation) {
		toolMs += step.DurationMs
	}
	share := total - time.Duration(toolMs)*time.Millisecond
	if share < 0 {
		share = 0
	}
	return share
}

func (s *Service) buildResponse(req types.Request, trace *types.Trace, provider llm.Provider, name string, started time.Time, llmTime time.Duration) *types.Response {
	info := provider.ModelInfo()
	return &types.Response{
		Message:   trace.FinalResponse,
		SessionID: req.SessionID,
		Model: types.ModelInfo{
			Name:     info.Name,
			Provider: info.Provider,
			Version:  info.Version,
		},
		Metadata: map[string]any{
			"provider":      name,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"total_time_ms": time.Since(started).Milliseconds(),
			"llm_time_ms":   llmTime.Milliseconds(),
			"iterations":    trace.Iterations,
			"tools_used":    trace.ToolsUsed(),
		},
	}
}
