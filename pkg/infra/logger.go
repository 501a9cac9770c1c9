package infra

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Guizzs26/ctms-sync/internal/config"
)

// SetupLogger builds the process logger. When cfg.LogFile is set, records
// are written to stdout and appended to that file; the returned closer
// releases it.
func SetupLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *config.Config, stdout io.Writer) (*slog.Logger, func() error, error) {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := stdout
	closer := func() error { return nil }
	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(stdout, logFile)
		closer = logFile.Close
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToUpper(cfg.LogFormat) == "JSON" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closer, nil
}
