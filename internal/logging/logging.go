// Package logging builds the structured logger used throughout the
// simulator, the same slog-over-a-configurable-handler setup the server
// binary has always used.
package logging

import (
	"log/slog"
	"os"

	"github.com/ruslanhut/ocpp-emu/internal/config"
)

// New builds a slog.Logger whose level and encoding follow cfg.LogLevel
// and cfg.LogFormat.
func New(cfg *config.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("cs_id", cfg.CSID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
