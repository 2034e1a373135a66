package applog

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_DefaultsToInfoLevel(t *testing.T) {
	log, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer log.Sync()
	if log == nil {
		t.Fatalf("expected a non-nil logger")
	}
	core := log.Desugar().Core()
	if !core.Enabled(zapcore.InfoLevel) || core.Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected the default level to be info")
	}
}

func TestNew_VerboseAndQuietConstructWithoutError(t *testing.T) {
	if _, err := New(Options{Verbose: true}); err != nil {
		t.Fatalf("New(verbose): %v", err)
	}
	if _, err := New(Options{Quiet: true}); err != nil {
		t.Fatalf("New(quiet): %v", err)
	}
}

func TestNew_WithLogFileCreatesRotatedCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distill.log")
	log, err := New(Options{LogFile: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello")
	_ = log.Sync()
}

func TestOrDefault(t *testing.T) {
	if got := orDefault(0, 5); got != 5 {
		t.Fatalf("expected the default for a non-positive value, got %d", got)
	}
	if got := orDefault(3, 5); got != 3 {
		t.Fatalf("expected the explicit value to win, got %d", got)
	}
}
