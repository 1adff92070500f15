package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestInitSlogWritesJSONToLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gator.log")
	initSlog("debug", logFile)
	defer slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	slog.Info("hello", "k", "v")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty, want JSON log line")
	}
}

func TestInitSlogDefaultsToStderrWhenNoLogFile(t *testing.T) {
	initSlog("info", "")
	defer slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if slog.Default().Handler() == nil {
		t.Fatal("slog.Default().Handler() = nil")
	}
}
