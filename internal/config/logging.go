package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger — текстовый slog с уровнем из конфига. Неизвестный уровень — info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
