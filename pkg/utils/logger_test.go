package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true, "")
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false, "")
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(false) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("log file receives entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "kotae.log")
		logger, err := NewLogger(false, path)
		if err != nil {
			t.Fatalf("NewLogger error: %v", err)
		}
		logger.Info("hello from test")
		_ = logger.Sync()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if len(data) == 0 {
			t.Error("expected log file to contain the entry")
		}
	})
}
