package logger

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the process logger: JSON on stderr, level from LOG_LEVEL.
func Init() {
	slog.SetDefault(New(os.Stderr, os.Getenv("LOG_LEVEL")))
}

func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel accepts debug, info, warn or error in any case, with an
// optional offset such as "info+2". Anything else means info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
