// Package pipeline runs confirmed sources through read, serialize and log, and replays
// the operation log back through the deserializer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/internal/oplog"
)

type Reader interface {
	Read(path string) (domain.LoadedValue, error)
}

type Serializer interface {
	Serialize(value domain.LoadedValue, workspace string, format domain.Format, originalName string) (string, error)
}

type Deserializer interface {
	Deserialize(path string) (domain.LoadedValue, error)
}

// Pipeline is stateless between calls; every call gets its own run id.
type Pipeline struct {
	fs           afero.Fs
	reader       Reader
	serializer   Serializer
	deserializer Deserializer

	logger        zerolog.Logger
	logPath       string
	convertTables bool
	newRunID      func() string
}

type Option func(*Pipeline)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithLogPath pins the operation log location. Without it the log lives in the workspace.
func WithLogPath(path string) Option {
	return func(p *Pipeline) {
		p.logPath = strings.TrimSpace(path)
	}
}

// WithConvertTables converts tables and frames to JSON records when the target is JSON.
func WithConvertTables(enabled bool) Option {
	return func(p *Pipeline) {
		p.convertTables = enabled
	}
}

func New(fs afero.Fs, reader Reader, serializer Serializer, deserializer Deserializer, opts ...Option) *Pipeline {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	p := &Pipeline{
		fs:           fs,
		reader:       reader,
		serializer:   serializer,
		deserializer: deserializer,
		logger:       zerolog.Nop(),
		newRunID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LogPath resolves the operation log used for workspace.
func (p *Pipeline) LogPath(workspace string) string {
	if p.logPath != "" {
		return p.logPath
	}
	return oplog.DefaultPath(workspace)
}

// Stage names the step at which a source stopped.
type Stage string

const (
	StageCheck     Stage = "check"
	StageRead      Stage = "read"
	StageSerialize Stage = "serialize"
	StageLog       Stage = "log"
)

// Outcome is the result for one source. Artifact is set whenever a file was written,
// even if logging it failed afterwards.
type Outcome struct {
	Source   string
	Artifact string
	Stage    Stage
	Err      error
	Message  string
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report holds one outcome per source, in confirmation order.
type Report struct {
	RunID    string
	Format   domain.Format
	LogPath  string
	Outcomes []Outcome
}

func (r Report) Failed() int {
	failed := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed++
		}
	}
	return failed
}

func (r Report) Succeeded() int {
	return len(r.Outcomes) - r.Failed()
}

func (r Report) String() string {
	lines := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		lines[i] = o.Message
	}
	return strings.Join(lines, "\n")
}

// Process serializes every source of session into its workspace and logs each artifact.
// A failing source is recorded and the loop moves on; artifacts written for earlier
// sources are kept. Request-level problems are returned before any source is touched.
// The context is checked between sources.
func (p *Pipeline) Process(ctx context.Context, session *domain.Session, format domain.Format) (Report, error) {
	if session == nil || len(session.Sources()) == 0 || session.Workspace() == "" {
		return Report{}, domain.ErrNoPaths
	}
	if !format.Valid() {
		return Report{}, fmt.Errorf("%w: %q (expected binary|json)", domain.ErrUnsupportedFormat, string(format))
	}
	workspace := session.Workspace()
	if info, err := p.fs.Stat(workspace); err != nil || !info.IsDir() {
		return Report{}, fmt.Errorf("%w: %s", domain.ErrWorkspaceNotFound, workspace)
	}

	report := Report{
		RunID:   p.newRunID(),
		Format:  format,
		LogPath: p.LogPath(workspace),
	}
	logger := p.logger.With().Str("run_id", report.RunID).Str("format", string(format)).Logger()
	opLog := oplog.New(p.fs, report.LogPath, oplog.WithLogger(logger))

	logger.Info().Int("sources", len(session.Sources())).Str("workspace", workspace).Msg("processing started")
	for _, source := range session.Sources() {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("processing cancelled")
			return report, err
		}
		outcome := p.processOne(source, workspace, format, opLog)
		if outcome.OK() {
			logger.Info().Str("source", source).Str("artifact", outcome.Artifact).Msg("source serialized")
		} else {
			logger.Warn().Err(outcome.Err).Str("source", source).Str("stage", string(outcome.Stage)).Msg("source skipped")
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	logger.Info().Int("succeeded", report.Succeeded()).Int("failed", report.Failed()).Msg("processing finished")
	return report, nil
}

func (p *Pipeline) processOne(source, workspace string, format domain.Format, opLog *oplog.Log) Outcome {
	if info, err := p.fs.Stat(source); err != nil || info.IsDir() {
		return Outcome{
			Source:  source,
			Stage:   StageCheck,
			Err:     domain.NewItemError(domain.ErrorKindNotFound, source, domain.ErrSourceNotFound),
			Message: fmt.Sprintf("data source does not exist: %s", source),
		}
	}

	value, err := p.reader.Read(source)
	if err != nil {
		return Outcome{
			Source:  source,
			Stage:   StageRead,
			Err:     err,
			Message: fmt.Sprintf("failed to read data from: %s: %v", source, cause(err)),
		}
	}

	if format == domain.FormatJSON && p.convertTables && !value.JSONRepresentable() {
		value = value.JSONCompatible()
	}

	artifact, err := p.serializer.Serialize(value, workspace, format, source)
	if err != nil {
		return Outcome{
			Source:  source,
			Stage:   StageSerialize,
			Err:     err,
			Message: fmt.Sprintf("error serializing data from %s: %v", source, cause(err)),
		}
	}

	if err := opLog.Append(domain.VerbSerialized, artifact); err != nil {
		return Outcome{
			Source:   source,
			Artifact: artifact,
			Stage:    StageLog,
			Err:      err,
			Message:  fmt.Sprintf("data saved from: %s to %s but the operation log was not updated: %v", source, artifact, err),
		}
	}

	return Outcome{
		Source:   source,
		Artifact: artifact,
		Message:  fmt.Sprintf("data successfully saved from: %s to %s", source, artifact),
	}
}

// cause strips the path an ItemError adds, since the message already names the source.
func cause(err error) error {
	var itemErr *domain.ItemError
	if errors.As(err, &itemErr) && itemErr.Err != nil {
		return itemErr.Err
	}
	return err
}
