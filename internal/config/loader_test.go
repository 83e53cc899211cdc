package config

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/datastash/internal/domain"
)

// clearEnv unsets keys for the test and restores them afterwards.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func newTestLoader(fs afero.Fs, opts ...Option) *Loader {
	base := []Option{WithFs(fs), WithSearchPaths("/etc/datastash"), WithEnvFile("/work/.env")}
	return NewLoader(viper.New(), append(base, opts...)...)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "DATASTASH_FORMAT", "DATASTASH_WORKSPACE", "DATASTASH_LOG_LEVEL")

	cfg, err := newTestLoader(afero.NewMemMapFs()).Load()
	require.NoError(t, err)

	assert.Equal(t, domain.FormatBinary, cfg.Format)
	assert.Equal(t, 100, cfg.PreviewChars)
	assert.False(t, cfg.ConvertTables)
	assert.Equal(t, LogConfig{
		Level:      "warn",
		Output:     "stderr",
		Console:    true,
		MaxSizeMB:  100,
		MaxAgeDays: 14,
		MaxBackups: 10,
	}, cfg.Log)
	assert.Empty(t, cfg.File)
	assert.Empty(t, cfg.OperationLogPath(""))
	assert.Equal(t, "/ws/serialization_log.txt", cfg.OperationLogPath("/ws"))
}

func TestLoadLayersFileEnvAndFlags(t *testing.T) {
	clearEnv(t, "DATASTASH_FORMAT", "DATASTASH_WORKSPACE", "DATASTASH_LOG_LEVEL", "DATASTASH_PREVIEW_CHARS")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/datastash/datastash.yaml", []byte(`
workspace: /from/file
format: json
preview_chars: 40
log:
  level: info
  output: /var/log/datastash.log
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/work/.env", []byte("DATASTASH_LOG_LEVEL=debug\nDATASTASH_PREVIEW_CHARS=60\n"), 0o644))
	t.Setenv("DATASTASH_PREVIEW_CHARS", "75")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("workspace", "", "")
	require.NoError(t, flags.Parse([]string{"--workspace", "/from/flag"}))
	v := viper.New()
	require.NoError(t, v.BindPFlag(KeyWorkspace, flags.Lookup("workspace")))

	cfg, err := NewLoader(v, WithFs(fs), WithSearchPaths("/etc/datastash"), WithEnvFile("/work/.env")).Load()
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", cfg.Workspace)
	assert.Equal(t, domain.FormatJSON, cfg.Format)
	assert.Equal(t, "debug", cfg.Log.Level, ".env fills unset variables")
	assert.Equal(t, 75, cfg.PreviewChars, ".env never overrides the real environment")
	assert.Equal(t, "/var/log/datastash.log", cfg.Log.Output)
	assert.Equal(t, "/etc/datastash/datastash.yaml", cfg.File)
}

func TestLoadExplicitConfigFile(t *testing.T) {
	clearEnv(t, "DATASTASH_FORMAT", "DATASTASH_CONVERT_TABLES")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/custom.json", []byte(`{"convert_tables": true, "log_path": "/logs/ops.txt"}`), 0o644))

	cfg, err := newTestLoader(fs, WithConfigFile("/cfg/custom.json")).Load()
	require.NoError(t, err)
	assert.True(t, cfg.ConvertTables)
	assert.Equal(t, "/logs/ops.txt", cfg.OperationLogPath("/ws"))

	_, err = newTestLoader(fs, WithConfigFile("/cfg/missing.yaml")).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t, "DATASTASH_FORMAT", "DATASTASH_LOG_LEVEL", "DATASTASH_PREVIEW_CHARS")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/datastash/datastash.toml", []byte(`
format = "parquet"
preview_chars = -1
[log]
level = "loud"
`), 0o644))

	_, err := newTestLoader(fs).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	clearEnv(t, "DATASTASH_FORMAT")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/datastash/datastash.yaml", []byte("format: [unterminated"), 0o644))

	_, err := newTestLoader(fs).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestParseLogLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		_, err := ParseLogLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}
