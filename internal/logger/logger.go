package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/akarpov/planboard/internal/config"
)

// New builds the process logger: console output in dev, JSON elsewhere.
// Every line carries the service name and the namespace it plans for.
func New(cfg config.Config) zerolog.Logger {
	logger := newWithWriter(cfg, os.Stdout)
	log.Logger = logger
	return logger
}

func newWithWriter(cfg config.Config, w io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.AppEnv == "dev" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
		logger = zerolog.New(w)
	}
	return logger.With().
		Timestamp().
		Str("svc", "planboard").
		Str("project", cfg.ProjectKey).
		Logger()
}
