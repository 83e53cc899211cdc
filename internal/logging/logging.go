// Package logging builds the diagnostic zerolog logger. It is separate from the
// operation log, which is never rotated.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rpattn/datastash/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for cfg and a closer for its output. Output is "stdout",
// "stderr", "" (discard) or a file path written through lumberjack.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	level, err := config.ParseLogLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out, closer := output(cfg)
	if out == io.Discard {
		return zerolog.Nop(), closer, nil
	}
	if cfg.Console {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    out != os.Stderr && out != os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

func output(cfg config.LogConfig) (io.Writer, io.Closer) {
	switch cfg.Output {
	case "stdout":
		return os.Stdout, nopCloser{}
	case "stderr":
		return os.Stderr, nopCloser{}
	case "":
		return io.Discard, nopCloser{}
	default:
		rotating := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		}
		return rotating, rotating
	}
}
