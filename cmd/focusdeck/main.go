// Package main is the entry point for the FocusDeck assistant CLI.
// FocusDeck is a local-first productivity assistant that manages tasks,
// tracks focus time and answers questions about your work patterns.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/focusdeck/focusdeck/internal/config"
	"github.com/focusdeck/focusdeck/internal/execlog"
	"github.com/focusdeck/focusdeck/internal/judge"
	"github.com/focusdeck/focusdeck/internal/llm"
	"github.com/focusdeck/focusdeck/internal/logging"
	"github.com/focusdeck/focusdeck/internal/service"
	"github.com/focusdeck/focusdeck/internal/storage"
	"github.com/focusdeck/focusdeck/pkg/types"
)

var (
	version = "0.1.0"
	cfgPath string
	dbPath  string
	verbose bool
	log     *logging.Logger
)

// ═══════════════════════════════════════════════════════════════════════════════
// STYLES
// ═══════════════════════════════════════════════════════════════════════════════

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "focusdeck",
		Short: "FocusDeck - Local-first productivity assistant",
		Long: `FocusDeck is an AI-powered productivity assistant that combines:
  • Task management through natural conversation
  • Focus timer with session tracking
  • Productivity analytics over your own data
  • Local-first model execution with cloud fallback

Ask a question:      focusdeck ask "what's on my plate today?"
Provider status:     focusdeck providers
Usage statistics:    focusdeck stats`,
		PersistentPreRunE: initLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.focusdeck/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default ~/.focusdeck/focusdeck.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("FocusDeck v%s\n", version)
		},
	})

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	if verbose {
		cfg.Level = logging.LevelDebug
	} else {
		cfg.Level = logging.ParseLevel(loadedConfig().Logging.Level)
	}
	if file := loadedConfig().Logging.File; file != "" {
		cfg.FilePath = file
	}

	log = logging.New(cfg)
	logging.SetGlobal(log)

	if verbose {
		log.Debug("Verbose logging enabled")
		log.Debug("Config path override: %s", cfgPath)
		log.Debug("DB path override: %s", dbPath)
	}
	return nil
}

// loadedConfig loads the config file, applying CLI overrides. Falls back to
// defaults when no file exists yet.
func loadedConfig() *config.Config {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		cfg = config.Default()
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	return cfg
}

// bootstrap opens the store and assembles the service runtime.
func bootstrap() (*service.Service, *config.Config, func(), error) {
	cfg := loadedConfig()
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to prepare data directories: %w", err)
	}

	store, err := storage.NewStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	svc := service.Build(cfg, service.Repositories{
		Tasks:  store,
		Timers: store,
		Logs:   store,
	})

	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn("Failed to close database: %v", err)
		}
	}
	return svc, cfg, cleanup, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// ASK COMMAND (One-shot query)
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	var modelPref string
	var sessionID string
	var evaluate bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask FocusDeck a question (one-shot query)",
		Long: `Ask a question and get an AI-powered response.

Examples:
  focusdeck ask "what should I work on next?"
  focusdeck ask "start a 25 minute timer for the report"
  focusdeck ask "how productive was I this week?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			svc, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			resp, trace, err := svc.ProcessMessage(ctx, types.Request{
				Message:         question,
				SessionID:       sessionID,
				ModelPreference: modelPref,
			})
			if err != nil {
				return fmt.Errorf("failed to process: %w", err)
			}

			fmt.Println(resp.Message)
			if verbose {
				fmt.Println(faintStyle.Render(fmt.Sprintf(
					"provider=%v total=%vms llm=%vms iterations=%v",
					resp.Metadata["provider"], resp.Metadata["total_time_ms"],
					resp.Metadata["llm_time_ms"], resp.Metadata["iterations"])))
			}

			if evaluate {
				eval, err := svc.Evaluate(ctx, trace)
				if err != nil {
					return fmt.Errorf("evaluation failed: %w", err)
				}
				printEvaluation(eval)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPref, "model", "", "provider preference (local or gemini)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session identifier (default: random)")
	cmd.Flags().BoolVar(&evaluate, "judge", false, "score the response with the judge after answering")

	return cmd
}

func printEvaluation(eval *judge.Evaluation) {
	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("Judge score: %.1f/10", eval.Overall)))
	for _, aspect := range []string{
		judge.AspectReasoning, judge.AspectToolUsage, judge.AspectRelevance,
		judge.AspectCompleteness, judge.AspectEfficiency,
	} {
		score, ok := eval.Aspects[aspect]
		if !ok {
			continue
		}
		fmt.Printf("  %-20s %.1f  %s\n", aspect, score.Score, faintStyle.Render(score.Explanation))
	}
	if eval.GeneralFeedback != "" {
		fmt.Printf("\n%s\n", eval.GeneralFeedback)
	}
	for _, rec := range eval.Recommendations {
		fmt.Printf("  • %s\n", rec)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROVIDERS COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show and manage model providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Println(titleStyle.Render("Model Providers"))
			fmt.Printf("Primary: %s\n\n", cfg.Preferences.PrimaryProvider)

			for _, h := range svc.Manager().HealthSnapshot() {
				state := successStyle.Render(string(h.State))
				switch {
				case h.State == llm.StateUnavailable || h.State == llm.StateError:
					state = errorStyle.Render(string(h.State))
				case h.ConsecutiveFailures > 0:
					state = warnStyle.Render(string(h.State))
				}
				fmt.Printf("  %-10s %s\n", h.Name, state)
				fmt.Printf("    successes: %d  failures: %d  avg latency: %dms\n",
					h.TotalSuccesses, h.TotalFailures, h.AvgLatencyMs)
				if h.LastError != "" {
					fmt.Printf("    last error: %s\n", faintStyle.Render(h.LastError))
				}
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "switch [name]",
		Short: "Switch the active provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			msg, err := svc.Manager().Switch(args[0])
			if err != nil {
				return err
			}
			if _, active := svc.Manager().Active(); active == args[0] {
				fmt.Println(successStyle.Render(msg))
			} else {
				fmt.Println(warnStyle.Render(msg))
			}
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func statsCmd() *cobra.Command {
	var windowHours int
	var sessionID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tool usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadedConfig()
			store, err := storage.NewStore(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()
			if err := store.Migrate(); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			if sessionID != "" {
				stats, err := store.GetSessionToolStats(context.Background(), sessionID)
				if err != nil {
					return fmt.Errorf("failed to load session stats: %w", err)
				}
				printSessionStats(sessionID, stats)
				return nil
			}

			window := time.Duration(windowHours) * time.Hour
			report, err := execlog.BuildAnalytics(context.Background(), store, window)
			if err != nil {
				return fmt.Errorf("failed to build report: %w", err)
			}

			printReport(report, window)
			return nil
		},
	}

	cmd.Flags().IntVar(&windowHours, "hours", 24, "analysis window in hours")
	cmd.Flags().StringVar(&sessionID, "session", "", "show per-tool stats for one session instead of the global report")
	return cmd
}

func printSessionStats(sessionID string, stats []storage.SessionToolStats) {
	fmt.Println(titleStyle.Render("Session " + sessionID))

	if len(stats) == 0 {
		fmt.Println("No tool executions recorded for this session.")
		return
	}

	for _, st := range stats {
		fmt.Printf("%-22s %3d runs  %3.0f%% ok  avg %dms\n",
			st.Tool, st.Executions, st.SuccessRate*100, st.AvgDurationMs)
	}
}

func printReport(report *storage.AnalyticsReport, window time.Duration) {
	fmt.Println(titleStyle.Render("Usage Statistics"))
	fmt.Printf("Window: last %s\n\n", window)

	if report.TotalExecutions == 0 {
		fmt.Println("No tool executions recorded in this window.")
		return
	}

	fmt.Printf("Executions:    %d\n", report.TotalExecutions)
	fmt.Printf("Success rate:  %.0f%%\n", report.SuccessRate*100)
	if report.MostUsedTool != "" {
		fmt.Printf("Most used:     %s\n", report.MostUsedTool)
	}
	if report.MostReliableTool != "" {
		fmt.Printf("Most reliable: %s\n", report.MostReliableTool)
	}
	fmt.Printf("Duration:      min %dms / avg %dms / p95 %dms / max %dms\n",
		report.MinDurationMs, report.AvgDurationMs, report.P95DurationMs, report.MaxDurationMs)
	fmt.Printf("Peak hour:     %02d:00\n", report.PeakHour)

	if len(report.ErrorPatterns) > 0 {
		fmt.Println("\n" + warnStyle.Render("Recurring errors:"))
		for _, p := range report.ErrorPatterns {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(report.CommonSequences) > 0 {
		fmt.Println("\nCommon tool sequences:")
		for _, s := range report.CommonSequences {
			fmt.Printf("  %s\n", s)
		}
	}
	if len(report.Recommendations) > 0 {
		fmt.Println("\n" + titleStyle.Render("Recommendations:"))
		for _, r := range report.Recommendations {
			fmt.Printf("  • %s\n", r)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadedConfig()

			fmt.Println(titleStyle.Render("FocusDeck Configuration"))
			fmt.Printf("Database path:    %s\n", cfg.Storage.DBPath)
			fmt.Printf("Primary provider: %s\n", cfg.Preferences.PrimaryProvider)
			fmt.Printf("Auto failover:    %t\n", cfg.Switching.AutoFailoverEnabled)
			fmt.Printf("Fallback order:   %s\n", strings.Join(cfg.Preferences.Fallbacks, ", "))
			fmt.Printf("Local endpoint:   %s\n", cfg.Providers.Local.Endpoint)
			fmt.Printf("Local model:      %s\n", cfg.Providers.Local.Model)
			fmt.Printf("Gemini model:     %s\n", cfg.Providers.Gemini.Model)
			fmt.Printf("Log level:        %s\n", cfg.Logging.Level)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Default configuration written."))
			return nil
		},
	})

	return cmd
}
