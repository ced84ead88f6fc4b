// Package slogger provides a shared LOG_LEVEL-aware slog initialization helper.
//
// Call Init() at the start of any service's main() to configure the global
// slog logger from the environment. This also bridges legacy log.Print* calls
// through slog (Go 1.22+ behaviour via slog.SetDefault).
//
// Valid LOG_LEVEL values: "debug", "info", "warn", "error" (default "info").
// LOG_FORMAT selects "text" (default) or "json" output; services running
// behind a log collector should set json.
package slogger

import (
	"log/slog"
	"os"
	"strings"
)

// level holds the dynamic log level so it can be queried at runtime.
var level *slog.LevelVar

// Init reads LOG_LEVEL and LOG_FORMAT, configures a global slog handler on
// stdout, and sets it as the default logger.
func Init() {
	level = &slog.LevelVar{}
	level.Set(parseLevel(os.Getenv("LOG_LEVEL")))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Level returns the current slog.Level. Useful for conditional logic such as
// skipping expensive debug formatting when not in debug mode.
func Level() slog.Level {
	if level == nil {
		return slog.LevelInfo
	}
	return level.Level()
}

// IsDebug returns true when the current log level is debug or lower.
func IsDebug() bool {
	return Level() <= slog.LevelDebug
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
