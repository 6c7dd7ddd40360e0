package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config controls where and how the engine logs.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// DataRoot is the engine's data root; logs are written to
	// <DataRoot>/logs/engine.log.
	DataRoot string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr additionally mirrors logs to stderr.
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for a given data root.
func DefaultConfig(dataRoot string) Config {
	return Config{
		Level:         "info",
		DataRoot:      dataRoot,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// LogPath returns the path logs are written to for the given data root.
func LogPath(dataRoot string) string {
	return filepath.Join(dataRoot, "logs", "engine.log")
}

// Setup initializes slog with a rotating file writer (and optionally
// stderr) and installs it as the default logger. The returned cleanup
// function closes the underlying file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	writer, err := NewRotatingWriter(LogPath(cfg.DataRoot), cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = writer
	if cfg.WriteToStderr {
		out = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cleanup := func() { _ = writer.Close() }
	return logger, cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
