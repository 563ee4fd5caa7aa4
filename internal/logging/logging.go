// Package logging wraps zerolog with lumberjack-based rotation, the
// same pairing the monitoring pipeline this gateway's ambient stack
// follows uses for its own structured logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rorsat-ltd/kosmos/internal/config"
)

// New builds a zerolog.Logger from cfg. An empty Path logs to stdout
// instead of rotating a file, which is what a console format implies.
func New(cfg config.Logging) (zerolog.Logger, error) {
	var writer io.Writer = os.Stdout

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("logging: create log directory: %w", err)
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	log := zerolog.New(writer).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return log.Level(level), nil
}
