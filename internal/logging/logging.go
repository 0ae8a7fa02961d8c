// Package logging builds the zerolog loggers shared by the binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"
)

// New returns a console logger in development and JSON otherwise.
func New(env, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, env, level)
}

func NewWithWriter(w io.Writer, env, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if env == "" || env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
			Level(lvl).
			With().
			Timestamp().
			Caller().
			Logger()
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// HTTP returns the request logger used by httplog.RequestLogger.
func HTTP(service, env, level string) zerolog.Logger {
	return httplog.NewLogger(service, httplog.Options{
		JSON:     env != "" && env != "development",
		LogLevel: level,
		Concise:  true,
	})
}
