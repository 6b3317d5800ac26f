// Package applog sets up the process-wide structured logger. No library
// in the example corpus provides a structured JSON logger (the pack
// leans on whatever each repo already had, mostly log/slog or bare
// fmt/log), so this stays on the standard library's slog.JSONHandler,
// matching the teacher's own "logs/app.jsonl, one JSON object per line"
// convention.
package applog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Init opens logFile (creating parent directories as needed), installs a
// JSON slog.Logger writing to both the file and stderr at levelName, and
// sets it as the default logger.
func Init(logFile, levelName string) (io.Closer, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("applog: create log dir: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("applog: open log file: %w", err)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(f, os.Stderr), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return f, nil
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("applog: unknown LOG_LEVEL %q", name)
	}
}
