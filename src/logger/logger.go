package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"proxima/src/config"
)

var Logger zerolog.Logger
var logFile *os.File

// Init installs the process-wide logger described by cfg and mirrors it into
// zerolog's global log.Logger.
func Init(cfg config.LogConfig) zerolog.Logger {
	return InitWithWriter(cfg, os.Stdout)
}

func InitWithWriter(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	CloseLogger()
	if path := cfg.File; path != "" && path != "none" && path != "disabled" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error().Err(err).Str("log_file", path).Msg("Failed to open log file, using stdout only")
		} else {
			logFile = f
		}
	}

	var writers []io.Writer
	if strings.EqualFold(cfg.Format, "pretty") {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, out)
	}
	if logFile != nil {
		writers = append(writers, logFile)
	}

	Logger = zerolog.New(io.MultiWriter(writers...)).With().
		Timestamp().
		Str("service", "proxima").
		Logger()
	log.Logger = Logger

	ev := Logger.Info().Str("log_level", level.String())
	if logFile != nil {
		ev = ev.Str("log_file", cfg.File)
	}
	ev.Msg("Logger initialized")

	return Logger
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}
