package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zap.DebugLevel,
		" WARN ":  zap.WarnLevel,
		"error":   zap.ErrorLevel,
		"":        zap.InfoLevel,
		"verbose": zap.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWithFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "strategy.log")

	for i := 0; i < 2; i++ {
		logger, err := NewLoggerWithFile(path, "info")
		if err != nil {
			t.Fatalf("NewLoggerWithFile() error = %v", err)
		}
		logger.Info("tick", zap.Int("n", i))
		logger.Debug("hidden")
		_ = logger.Sync()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 appended lines, got %d: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], `"ts"`) || !strings.Contains(lines[0], `"level":"INFO"`) {
		t.Errorf("Unexpected log line %s", lines[0])
	}
}

func TestRedactKey(t *testing.T) {
	if got := RedactKey("abcd1234efgh5678"); got != "abcd********5678" {
		t.Errorf("Expected abcd********5678, got %s", got)
	}
	if got := RedactKey("short"); got != "*****" {
		t.Errorf("Expected *****, got %s", got)
	}
}
