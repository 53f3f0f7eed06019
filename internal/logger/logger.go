// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and optional
// size-based log rotation.
package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig controls file-based log rotation. A zero Filename
// disables file output and logs go to stdout only.
type RotationConfig struct {
	Filename   string
	MaxSizeMB  int // per-file size cap before rotation
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return initWriter(service, level, os.Stdout)
}

// InitWithRotation creates a structured logger that writes JSON to both
// stdout and a rotating log file.
func InitWithRotation(service string, level slog.Level, rot RotationConfig) *slog.Logger {
	if rot.Filename == "" {
		return Init(service, level)
	}
	if rot.MaxSizeMB <= 0 {
		rot.MaxSizeMB = 100
	}
	if rot.MaxBackups <= 0 {
		rot.MaxBackups = 5
	}

	file := &lumberjack.Logger{
		Filename:   rot.Filename,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	}
	return initWriter(service, level, io.MultiWriter(os.Stdout, file))
}

func initWriter(service string, level slog.Level, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a config string to a slog level. Unknown values
// fall back to Info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
