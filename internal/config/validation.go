package config

import (
	"fmt"

	"github.com/hengadev/errsx"
	"github.com/rs/zerolog"
)

var logLevels = map[string]zerolog.Level{
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
}

// ParseLogLevel maps a configured level name to a zerolog level.
func ParseLogLevel(name string) (zerolog.Level, error) {
	if level, ok := logLevels[name]; ok {
		return level, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", name)
}

// validate reports every problem at once, keyed by setting name.
func (c Config) validate(formatErr error) error {
	errs := errsx.Map{}

	if formatErr != nil {
		errs.Set(KeyFormat, formatErr)
	}
	if c.PreviewChars < 0 {
		errs.Set(KeyPreviewChars, fmt.Errorf("must not be negative, got %d", c.PreviewChars))
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs.Set(KeyLogLevel, err)
	}
	if c.Log.MaxSizeMB < 0 {
		errs.Set(KeyLogMaxSize, fmt.Errorf("must not be negative, got %d", c.Log.MaxSizeMB))
	}
	if c.Log.MaxAgeDays < 0 {
		errs.Set(KeyLogMaxAge, fmt.Errorf("must not be negative, got %d", c.Log.MaxAgeDays))
	}
	if c.Log.MaxBackups < 0 {
		errs.Set(KeyLogMaxBackups, fmt.Errorf("must not be negative, got %d", c.Log.MaxBackups))
	}

	return errs.AsError()
}
