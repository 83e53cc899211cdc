// Package cli is the command-line front end: cobra commands that confirm paths, run the
// pipeline and print results to two streams, messages on stderr and content on stdout.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rpattn/datastash/internal/codec"
	"github.com/rpattn/datastash/internal/config"
	"github.com/rpattn/datastash/internal/logging"
	"github.com/rpattn/datastash/internal/pipeline"
	"github.com/rpattn/datastash/internal/reader"
	"github.com/rpattn/datastash/internal/report"
)

type App struct {
	fs     afero.Fs
	v      *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configFile string
	configOpts []config.Option

	cfg          config.Config
	logger       zerolog.Logger
	loggerSet    bool
	logCloser    io.Closer
	codecOptions []codec.SerializerOption
}

type AppOption func(*App)

func WithFs(fs afero.Fs) AppOption {
	return func(a *App) {
		if fs != nil {
			a.fs = fs
		}
	}
}

func WithStreams(stdin io.Reader, stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		a.stdin = stdin
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithConfigOptions passes extra options to the config loader.
func WithConfigOptions(opts ...config.Option) AppOption {
	return func(a *App) {
		a.configOpts = append(a.configOpts, opts...)
	}
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger zerolog.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
		a.loggerSet = true
	}
}

func WithSerializerOptions(opts ...codec.SerializerOption) AppOption {
	return func(a *App) {
		a.codecOptions = append(a.codecOptions, opts...)
	}
}

func NewApp(opts ...AppOption) *App {
	a := &App{
		fs:     afero.NewOsFs(),
		v:      viper.New(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes args and returns the process exit code.
func Run(ctx context.Context, args []string, opts ...AppOption) int {
	return NewApp(opts...).Run(ctx, args)
}

func (a *App) Run(ctx context.Context, args []string) int {
	root := a.RootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
	if err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(a.stderr, "Error: %s\n", msg)
		}
	}
	return ExitCode(err)
}

// RootCommand builds the command tree.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "datastash",
		Short: "Re-serialize data files into a workspace and replay them from the operation log",
		Long: `datastash reads CSV, JSON, Excel, XML and R data files, writes each one into a
workspace as a binary (CBOR) or JSON artifact, and records every artifact in an
append-only operation log. Logged artifacts can later be replayed, inspected and
summarized.

Settings are read from datastash.{yaml,json,toml} in the working directory or the
home directory, from DATASTASH_* environment variables (a .env file is honoured)
and from flags, in increasing precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocation(err)
	})

	persistent := root.PersistentFlags()
	persistent.StringVarP(&a.configFile, "config", "c", "", "config file path")
	persistent.StringP("workspace", "w", "", "workspace directory receiving artifacts")
	persistent.String("log", "", "operation log path (default <workspace>/serialization_log.txt)")
	persistent.String("log-level", "", "diagnostic log level: debug|info|warn|error")
	_ = a.v.BindPFlag(config.KeyWorkspace, persistent.Lookup("workspace"))
	_ = a.v.BindPFlag(config.KeyLogPath, persistent.Lookup("log"))
	_ = a.v.BindPFlag(config.KeyLogLevel, persistent.Lookup("log-level"))

	root.AddCommand(
		a.processCommand(),
		a.deserializeCommand(),
		a.replayCommand(),
		a.reportCommand(),
		a.sessionCommand(),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	opts := append([]config.Option{config.WithFs(a.fs), config.WithConfigFile(a.configFile)}, a.configOpts...)
	cfg, err := config.NewLoader(a.v, opts...).Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if !a.loggerSet {
		logger, closer, err := logging.New(cfg.Log)
		if err != nil {
			return &ExitError{Code: ExitConfigError, Err: err}
		}
		a.logger = logger
		a.logCloser = closer
	}
	a.logger.Debug().Str("command", cmd.Name()).Str("config", cfg.File).Msg("configuration loaded")
	return nil
}

func (a *App) newPipeline() *pipeline.Pipeline {
	serializerOpts := append([]codec.SerializerOption{codec.WithSerializerLogger(a.logger)}, a.codecOptions...)
	return pipeline.New(a.fs,
		reader.New(a.fs, reader.WithLogger(a.logger)),
		codec.NewSerializer(a.fs, serializerOpts...),
		a.newDeserializer(),
		pipeline.WithLogger(a.logger),
		pipeline.WithLogPath(a.cfg.LogPath),
		pipeline.WithConvertTables(a.cfg.ConvertTables),
	)
}

func (a *App) newDeserializer() *codec.Deserializer {
	return codec.NewDeserializer(a.fs, codec.WithDeserializerLogger(a.logger))
}

func (a *App) newReportService() *report.Service {
	return report.NewService(a.fs, a.newDeserializer(), report.WithLogger(a.logger))
}

// operationLog resolves the log for commands that read it, failing when neither a log
// path nor a workspace is configured.
func (a *App) operationLog(workspace string) (string, error) {
	path := a.cfg.OperationLogPath(workspace)
	if path == "" {
		return "", invalidInvocationf("no operation log configured: pass --log or --workspace")
	}
	return path, nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.stderr, format, args...)
}
