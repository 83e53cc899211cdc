package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/internal/oplog"
)

// ReplayResult is the outcome of deserializing one logged path.
type ReplayResult struct {
	Path  string
	Value domain.LoadedValue
	Err   error
}

func (r ReplayResult) OK() bool {
	return r.Err == nil
}

func (r ReplayResult) Message() string {
	if r.Err != nil {
		return fmt.Sprintf("failed to deserialize %s: %v", r.Path, cause(r.Err))
	}
	return fmt.Sprintf("deserialized data from %s", r.Path)
}

type ReplayReport struct {
	RunID   string
	LogPath string
	Results []ReplayResult
}

func (r ReplayReport) Failed() int {
	failed := 0
	for _, res := range r.Results {
		if !res.OK() {
			failed++
		}
	}
	return failed
}

func (r ReplayReport) String() string {
	lines := make([]string, len(r.Results))
	for i, res := range r.Results {
		lines[i] = res.Message()
	}
	return strings.Join(lines, "\n")
}

// Replay deserializes each distinct path in the log once, appending a Deserialized
// entry for every success. A missing log is a request-level error; a failing path is
// recorded and the batch continues. The context is checked between paths.
func (p *Pipeline) Replay(ctx context.Context, logPath string) (ReplayReport, error) {
	report := ReplayReport{
		RunID:   p.newRunID(),
		LogPath: logPath,
	}
	logger := p.logger.With().Str("run_id", report.RunID).Str("log", logPath).Logger()
	opLog := oplog.New(p.fs, logPath, oplog.WithLogger(logger))

	entries, err := opLog.Read()
	if err != nil {
		return report, err
	}
	paths := oplog.Paths(entries)
	logger.Info().Int("entries", len(entries)).Int("paths", len(paths)).Msg("replay started")

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("replay cancelled")
			return report, err
		}

		value, err := p.deserializer.Deserialize(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("deserialize failed")
			report.Results = append(report.Results, ReplayResult{Path: path, Err: err})
			continue
		}
		if err := opLog.Append(domain.VerbDeserialized, path); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("append to operation log failed")
			report.Results = append(report.Results, ReplayResult{Path: path, Value: value, Err: err})
			continue
		}
		report.Results = append(report.Results, ReplayResult{Path: path, Value: value})
	}

	logger.Info().Int("failed", report.Failed()).Msg("replay finished")
	return report, nil
}

// DeserializeOne loads a single artifact and records it in the log at logPath. An empty
// logPath skips the log.
func (p *Pipeline) DeserializeOne(logPath, path string) (domain.LoadedValue, error) {
	value, err := p.deserializer.Deserialize(path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("deserialize failed")
		return domain.LoadedValue{}, err
	}
	if logPath == "" {
		return value, nil
	}
	if err := oplog.New(p.fs, logPath, oplog.WithLogger(p.logger)).Append(domain.VerbDeserialized, path); err != nil {
		return value, fmt.Errorf("record deserialization of %s: %w", path, err)
	}
	return value, nil
}
