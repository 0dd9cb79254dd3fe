package config

import (
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps LOG_LEVEL values to slog levels; unknown values mean info.
func ParseLevel(level string) slog.Level {
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

// SetupLogger installs a JSON logger on stdout as the default. When logFile
// is set, records also go to that file through a fan-out handler. The
// returned cleanup closes the file.
func SetupLogger(level, logFile string) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	stdout := slog.NewJSONHandler(os.Stdout, opts)

	logger := slog.New(stdout)
	cleanup := func() error { return nil }

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Error("failed to open log file, using stdout only", "error", err, "file", logFile)
		} else {
			logger = slog.New(slogmulti.Fanout(stdout, slog.NewJSONHandler(file, opts)))
			cleanup = file.Close
		}
	}

	slog.SetDefault(logger)
	return logger, cleanup
}
