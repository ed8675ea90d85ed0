package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Expected debug level to be enabled")
	}

	logger, err = New("warn", false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Expected info level to be disabled")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("loud", false); err == nil {
		t.Error("Expected error for invalid level")
	}
}
