package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func logPathFor(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("meetscribe-%s.log", day.Format("20060102")))
}

func readLog(t *testing.T, dir string) string {
	t.Helper()
	content, err := os.ReadFile(logPathFor(dir, time.Now()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Level != INFO {
		t.Errorf("Expected default level INFO, got %v", config.Level)
	}

	if config.RetentionDays != 7 {
		t.Errorf("Expected retention days 7, got %d", config.RetentionDays)
	}

	if !strings.HasSuffix(config.LogDir, filepath.Join("meetscribe", "logs")) {
		t.Errorf("Unexpected log directory: %s", config.LogDir)
	}
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.level.String(); result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{"warning", WARN, false},
		{"error", ERROR, false},
		{"loud", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if level != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	logger, err := New(Config{LogDir: tempDir, Level: INFO, RetentionDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logPathFor(tempDir, time.Now())); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestLogging(t *testing.T) {
	tempDir := t.TempDir()

	logger, err := New(Config{LogDir: tempDir, Level: DEBUG, RetentionDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Debug("Debug message")
	logger.Info("Info message %d", 1)
	logger.Warn("Warn message")
	logger.Error("Error message")

	logContent := readLog(t, tempDir)

	for _, want := range []string{
		"[DEBUG]", "Debug message",
		"[INFO]", "Info message 1",
		"[WARN]", "Warn message",
		"[ERROR]", "Error message",
	} {
		if !strings.Contains(logContent, want) {
			t.Errorf("%q not found in log", want)
		}
	}
}

func TestLogLevel(t *testing.T) {
	tempDir := t.TempDir()

	logger, err := New(Config{LogDir: tempDir, Level: WARN, RetentionDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warn message")
	logger.Error("Error message")

	logContent := readLog(t, tempDir)

	if strings.Contains(logContent, "Debug message") {
		t.Error("Debug message should not be logged at WARN level")
	}
	if strings.Contains(logContent, "Info message") {
		t.Error("Info message should not be logged at WARN level")
	}
	if !strings.Contains(logContent, "Warn message") {
		t.Error("Warn message not found in log")
	}
	if !strings.Contains(logContent, "Error message") {
		t.Error("Error message not found in log")
	}
}

func TestMirror(t *testing.T) {
	tempDir := t.TempDir()
	var mirror bytes.Buffer

	logger, err := New(Config{LogDir: tempDir, Level: INFO, RetentionDays: 7, Mirror: &mirror})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Info("recording started: %s", "20250101_120000")

	if !strings.Contains(mirror.String(), "recording started: 20250101_120000") {
		t.Errorf("Expected mirrored line, got %q", mirror.String())
	}
	if !strings.Contains(readLog(t, tempDir), "recording started") {
		t.Error("Expected line in log file as well")
	}
}

func TestSetLevel(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Level: INFO, RetentionDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.GetLevel() != INFO {
		t.Errorf("Expected initial level INFO, got %v", logger.GetLevel())
	}

	logger.SetLevel(DEBUG)

	if logger.GetLevel() != DEBUG {
		t.Errorf("Expected level DEBUG, got %v", logger.GetLevel())
	}
}

func TestCleanOldLogs(t *testing.T) {
	tempDir := t.TempDir()

	tenDaysAgo := time.Now().AddDate(0, 0, -10)
	oldLogPath := logPathFor(tempDir, tenDaysAgo)

	if err := os.WriteFile(oldLogPath, []byte("old log"), 0644); err != nil {
		t.Fatalf("Failed to create old log file: %v", err)
	}
	if err := os.Chtimes(oldLogPath, tenDaysAgo, tenDaysAgo); err != nil {
		t.Fatalf("Failed to change file times: %v", err)
	}

	logger, err := New(Config{LogDir: tempDir, Level: INFO, RetentionDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(oldLogPath); !os.IsNotExist(err) {
		t.Error("Old log file should have been deleted")
	}

	if _, err := os.Stat(logPathFor(tempDir, time.Now())); os.IsNotExist(err) {
		t.Error("Current log file should exist")
	}
}

func TestNop(t *testing.T) {
	var l Interface = Nop()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}
