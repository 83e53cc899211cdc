// Package report summarizes the artifacts named in an operation log with a fixed set
// of columns. Nothing user-supplied is executed.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/internal/oplog"
)

type Deserializer interface {
	Deserialize(path string) (domain.LoadedValue, error)
}

// Row is everything known about one logged artifact. Size is -1 when the file could
// not be inspected.
type Row struct {
	Path     string
	LastVerb domain.Verb
	Size     int64
	Value    domain.LoadedValue
	Err      error
}

// Column is a labelled computation over a Row.
type Column struct {
	Label string
	Key   string
	Value func(Row) string
}

// Columns is the fixed report template.
var Columns = []Column{
	{Label: "Path", Key: "path", Value: func(r Row) string { return r.Path }},
	{Label: "Last Verb", Key: "last_verb", Value: func(r Row) string { return string(r.LastVerb) }},
	{Label: "Value", Key: "value_kind", Value: func(r Row) string { return string(r.Value.Kind) }},
	{Label: "Source", Key: "source_kind", Value: func(r Row) string { return string(r.Value.Source) }},
	{Label: "Size", Key: "size", Value: sizeOf},
	{Label: "Shape", Key: "shape", Value: func(r Row) string { return Shape(r.Value) }},
	{Label: "Status", Key: "status", Value: statusOf},
}

type Report struct {
	LogPath     string
	GeneratedAt time.Time
	Rows        []Row
}

// Records renders every row through Columns.
func (r Report) Records() [][]string {
	records := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		record := make([]string, len(Columns))
		for j, col := range Columns {
			record[j] = col.Value(row)
		}
		records[i] = record
	}
	return records
}

func (r Report) Failed() int {
	failed := 0
	for _, row := range r.Rows {
		if row.Err != nil {
			failed++
		}
	}
	return failed
}

func Labels() []string {
	labels := make([]string, len(Columns))
	for i, col := range Columns {
		labels[i] = col.Label
	}
	return labels
}

type Service struct {
	fs           afero.Fs
	deserializer Deserializer
	logger       zerolog.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(fs afero.Fs, deserializer Deserializer, opts ...Option) *Service {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &Service{
		fs:           fs,
		deserializer: deserializer,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build loads every distinct artifact in the log. Building never writes to the log.
func (s *Service) Build(ctx context.Context, logPath string) (Report, error) {
	entries, err := oplog.New(s.fs, logPath, oplog.WithLogger(s.logger)).Read()
	if err != nil {
		return Report{}, err
	}

	lastVerb := make(map[string]domain.Verb, len(entries))
	for _, entry := range entries {
		lastVerb[entry.Path] = entry.Verb
	}

	report := Report{LogPath: logPath, GeneratedAt: s.now()}
	for _, path := range oplog.Paths(entries) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		row := Row{Path: path, LastVerb: lastVerb[path], Size: -1}
		if info, err := s.fs.Stat(path); err == nil && !info.IsDir() {
			row.Size = info.Size()
		}
		row.Value, row.Err = s.deserializer.Deserialize(path)
		if row.Err != nil {
			s.logger.Debug().Err(row.Err).Str("path", path).Msg("report row failed")
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

// Shape describes the dimensions of a value: rows by columns for tables, frame sizes
// for frames, sorted keys for mappings, item counts for sequences, length for text.
func Shape(value domain.LoadedValue) string {
	switch value.Kind {
	case domain.ValueKindText:
		return fmt.Sprintf("%s characters", humanize.Comma(int64(len([]rune(value.Text)))))
	case domain.ValueKindTable:
		return tableShape(value.Table)
	case domain.ValueKindFrames:
		names := value.FrameNames()
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s %s", name, tableShape(value.Frames[name]))
		}
		return fmt.Sprintf("%d frames: %s", len(names), strings.Join(parts, ", "))
	case domain.ValueKindJSON:
		switch doc := value.JSON.(type) {
		case map[string]any:
			keys := make([]string, 0, len(doc))
			for key := range doc {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			return fmt.Sprintf("keys: %s", strings.Join(keys, ", "))
		case []any:
			return fmt.Sprintf("%s items", humanize.Comma(int64(len(doc))))
		default:
			return "scalar"
		}
	default:
		return ""
	}
}

func tableShape(table *domain.Table) string {
	if table == nil {
		return "0x0"
	}
	return fmt.Sprintf("%dx%d", table.RowCount(), len(table.Columns))
}

func sizeOf(r Row) string {
	if r.Size < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(r.Size))
}

func statusOf(r Row) string {
	if r.Err == nil {
		return "ok"
	}
	return truncateError(r.Err)
}

// truncateError keeps the first 512 characters of the message.
func truncateError(err error) string {
	const maxLen = 512
	msg := err.Error()
	runes := 0
	for idx := range msg {
		if runes == maxLen {
			return msg[:idx]
		}
		runes++
	}
	return msg
}
