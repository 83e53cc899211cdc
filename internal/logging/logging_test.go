package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/datastash/internal/config"
)

func TestNewWritesJSONToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "datastash.log")
	logger, closer, err := New(config.LogConfig{
		Level:      "info",
		Output:     path,
		MaxSizeMB:  1,
		MaxAgeDays: 1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("run_id", "abc").Msg("processing started")
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden")
	assert.Contains(t, string(content), `"run_id":"abc"`)
	assert.Contains(t, string(content), `"message":"processing started"`)
	assert.Equal(t, 1, strings.Count(string(content), "\n"))
}

func TestNewDiscard(t *testing.T) {
	logger, closer, err := New(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
	assert.NoError(t, closer.Close())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty", Output: "stderr"})
	assert.Error(t, err)
}
