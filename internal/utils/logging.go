package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/surge-downloader/gridsync/internal/config"
)

// Setup creates a zerolog logger according to the provided settings and
// installs it as the global logger used by Debug.
func Setup(cfg config.GeneralSettings, stdout io.Writer) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.Level() != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level())
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	if stdout == nil {
		stdout = os.Stderr
	}
	if strings.EqualFold(cfg.LogFormat, config.LogFormatText) {
		stdout = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{stdout}
	cleanup := func() {}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		cleanup = func() {
			_ = f.Sync()
			_ = f.Close()
		}
	}

	multi := zerolog.MultiLevelWriter(writers...)
	logger := zerolog.New(multi).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger, cleanup, nil
}

// Debug writes a debug message through the global logger.
func Debug(format string, args ...any) {
	log.Debug().Msgf(format, args...)
}
