package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if tt.level.String() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.level.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"unknown", LevelInfo}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%s) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(data)
}

func TestLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.log")
	logger := New(&Config{Level: LevelDebug, FilePath: path})
	defer logger.Close()

	logger.Info("provider %s registered", "local")

	out := readLog(t, path)
	if !strings.Contains(out, "provider local registered") {
		t.Errorf("expected message in log file, got: %s", out)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.log")
	logger := New(&Config{Level: LevelWarn, FilePath: path})
	defer logger.Close()

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := readLog(t, path)
	if strings.Contains(out, "debug message") {
		t.Error("debug message should be filtered")
	}
	if strings.Contains(out, "info message") {
		t.Error("info message should be filtered")
	}
	if !strings.Contains(out, "warn message") {
		t.Error("warn message should be present")
	}
	if !strings.Contains(out, "error message") {
		t.Error("error message should be present")
	}
}

func TestLoggerWithComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.log")
	logger := New(&Config{Level: LevelDebug, FilePath: path})
	defer logger.Close()

	logger.WithComponent("Registry").Info("tool registered")

	out := readLog(t, path)
	if !strings.Contains(out, "Registry") {
		t.Errorf("expected component in output, got: %s", out)
	}
}

func TestDetachContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	detached := DetachContext(parent)
	cancel()

	select {
	case <-detached.Done():
		t.Error("detached context should survive parent cancellation")
	default:
	}
}

func TestDetachContextWithTimeout(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	detached, dcancel := DetachContextWithTimeout(parent, 50*time.Millisecond)
	defer dcancel()

	select {
	case <-detached.Done():
		t.Fatal("detached context expired immediately")
	default:
	}

	select {
	case <-detached.Done():
	case <-time.After(time.Second):
		t.Fatal("detached context never honored its own timeout")
	}
}
