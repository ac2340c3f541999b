package logger

import (
    "os"
    "time"

    "github.com/netavenir/redmine-backlogs/internal/config"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

// New builds the process logger: a console writer in dev, JSON otherwise.
func New(cfg config.Config) zerolog.Logger {
    level, err := zerolog.ParseLevel(cfg.LogLevel)
    if err != nil || level == zerolog.NoLevel { level = zerolog.InfoLevel }

    var logger zerolog.Logger
    if cfg.AppEnv == "dev" {
        output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
        logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
    } else {
        zerolog.TimeFieldFormat = time.RFC3339
        logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "backlogs-history").Logger()
    }
    log.Logger = logger
    return logger
}
