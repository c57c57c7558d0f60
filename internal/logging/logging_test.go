package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestNew(t *testing.T) {
	for _, dev := range []bool{true, false} {
		logger, err := New("debug", dev)
		if err != nil {
			t.Fatalf("New(dev=%v) failed: %v", dev, err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("Expected debug to be enabled")
		}
	}

	if _, err := New("nope", false); err == nil {
		t.Error("Expected error for invalid level")
	}
}
