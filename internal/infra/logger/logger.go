package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// New builds the root zerolog logger with console output at the given level.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Wrap adapts the root logger to the SDK logging interface. Components derive
// their own scope with Sub("Name").
func Wrap(log zerolog.Logger) waLog.Logger {
	return waLog.Zerolog(log)
}
