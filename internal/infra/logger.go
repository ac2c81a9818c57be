package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can accept it without importing zerolog.
type Logger = zerolog.Logger

// NewLogger builds the process logger tagged with the component name.
// Development uses a console writer at debug level; other environments emit JSON at
// info level unless LOG_LEVEL overrides it.
func NewLogger(appEnv, component string) Logger {
	return newLogger(os.Stdout, appEnv, component, os.Getenv("LOG_LEVEL"))
}

func newLogger(out io.Writer, appEnv, component, levelName string) Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	if levelName != "" {
		if parsed, err := zerolog.ParseLevel(levelName); err == nil {
			level = parsed
		}
	}

	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return ctx.Logger()
}
