package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/internal/oplog"
)

// EnvPrefix prefixes every environment override, e.g. DATASTASH_LOG_LEVEL.
const EnvPrefix = "DATASTASH"

const configName = "datastash"

// Keys understood by the loader. Nested keys map to env vars with "." replaced by "_".
const (
	KeyWorkspace     = "workspace"
	KeyFormat        = "format"
	KeyLogPath       = "log_path"
	KeyConvertTables = "convert_tables"
	KeyPreviewChars  = "preview_chars"
	KeyLogLevel      = "log.level"
	KeyLogOutput     = "log.output"
	KeyLogConsole    = "log.console"
	KeyLogMaxSize    = "log.max_size_mb"
	KeyLogMaxAge     = "log.max_age_days"
	KeyLogMaxBackups = "log.max_backups"
)

// ErrInvalidConfig marks configuration that could not be read or validated.
var ErrInvalidConfig = errors.New("invalid configuration")

type LogConfig struct {
	Level      string
	Output     string
	Console    bool
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

type Config struct {
	Workspace     string
	Format        domain.Format
	LogPath       string
	ConvertTables bool
	PreviewChars  int
	Log           LogConfig

	// File is the config file that was read, empty when none was found.
	File string
}

// OperationLogPath returns the configured log path, or the default one inside workspace.
func (c Config) OperationLogPath(workspace string) string {
	if c.LogPath != "" {
		return c.LogPath
	}
	if workspace == "" {
		workspace = c.Workspace
	}
	if workspace == "" {
		return ""
	}
	return oplog.DefaultPath(workspace)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyWorkspace, "")
	v.SetDefault(KeyFormat, string(domain.FormatBinary))
	v.SetDefault(KeyLogPath, "")
	v.SetDefault(KeyConvertTables, false)
	v.SetDefault(KeyPreviewChars, 100)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogOutput, "stderr")
	v.SetDefault(KeyLogConsole, true)
	v.SetDefault(KeyLogMaxSize, 100)
	v.SetDefault(KeyLogMaxAge, 14)
	v.SetDefault(KeyLogMaxBackups, 10)
}

type Loader struct {
	v           *viper.Viper
	fs          afero.Fs
	configFile  string
	envFile     string
	searchPaths []string
}

type Option func(*Loader)

func WithFs(fs afero.Fs) Option {
	return func(l *Loader) {
		if fs != nil {
			l.fs = fs
		}
	}
}

// WithConfigFile reads exactly this file instead of searching for one.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.configFile = strings.TrimSpace(path)
	}
}

func WithEnvFile(path string) Option {
	return func(l *Loader) {
		l.envFile = path
	}
}

// WithSearchPaths replaces the default config directories (working directory and home).
func WithSearchPaths(paths ...string) Option {
	return func(l *Loader) {
		l.searchPaths = paths
	}
}

// NewLoader wraps v, which may already have command flags bound to it.
func NewLoader(v *viper.Viper, opts ...Option) *Loader {
	if v == nil {
		v = viper.New()
	}
	l := &Loader{
		v:       v,
		fs:      afero.NewOsFs(),
		envFile: ".env",
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.searchPaths == nil {
		l.searchPaths = []string{"."}
		if home, err := homedir.Dir(); err == nil {
			l.searchPaths = append(l.searchPaths, home)
		}
	}
	return l
}

// Load layers defaults, the config file, the environment (including .env) and bound
// flags, in increasing precedence, then validates the result.
func (l *Loader) Load() (Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	v := l.v
	setDefaults(v)
	v.SetFs(l.fs)
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		for _, path := range l.searchPaths {
			v.AddConfigPath(path)
		}
		v.SetConfigName(configName)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("%w: read config: %w", ErrInvalidConfig, err)
		}
	}

	cfg := Config{
		Workspace:     strings.TrimSpace(v.GetString(KeyWorkspace)),
		LogPath:       strings.TrimSpace(v.GetString(KeyLogPath)),
		ConvertTables: v.GetBool(KeyConvertTables),
		PreviewChars:  v.GetInt(KeyPreviewChars),
		Log: LogConfig{
			Level:      strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
			Output:     strings.TrimSpace(v.GetString(KeyLogOutput)),
			Console:    v.GetBool(KeyLogConsole),
			MaxSizeMB:  v.GetInt(KeyLogMaxSize),
			MaxAgeDays: v.GetInt(KeyLogMaxAge),
			MaxBackups: v.GetInt(KeyLogMaxBackups),
		},
		File: v.ConfigFileUsed(),
	}

	format, formatErr := domain.ParseFormat(v.GetString(KeyFormat))
	cfg.Format = format

	if err := cfg.validate(formatErr); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// loadEnvFile exports the .env entries that are not already set, like godotenv.Load,
// reading through the loader's filesystem.
func (l *Loader) loadEnvFile() error {
	if l.envFile == "" {
		return nil
	}
	f, err := l.fs.Open(filepath.Clean(l.envFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", l.envFile, err)
	}
	defer f.Close()

	values, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", l.envFile, err)
	}
	for key, value := range values {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("export %s: %w", key, err)
		}
	}
	return nil
}
