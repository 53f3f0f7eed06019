package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInitWithRotation_WritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector.log")

	logger := InitWithRotation("test-service", slog.LevelInfo, RotationConfig{
		Filename:  path,
		MaxSizeMB: 1,
	})
	logger.Info("startup", slog.String("symbol", "005930"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log output in file")
	}
}

func TestInitWithRotation_EmptyFilenameFallsBack(t *testing.T) {
	logger := InitWithRotation("test-service", slog.LevelInfo, RotationConfig{})
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
