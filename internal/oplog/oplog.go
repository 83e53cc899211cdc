// Package oplog is the append-only operation log: one `Verb: path` line per completed
// serialize or deserialize.
package oplog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rpattn/datastash/internal/domain"
)

// DefaultFileName is the log's name inside a workspace.
const DefaultFileName = "serialization_log.txt"

const maxLineBytes = 1 << 20

const (
	serializedMarker = "serialized:"
	deMarkerPrefix   = "de"
)

// Log appends to and reads one log file. It assumes a single writer.
type Log struct {
	fs     afero.Fs
	path   string
	logger zerolog.Logger
}

type Option func(*Log)

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

func New(fs afero.Fs, path string, opts ...Option) *Log {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := &Log{
		fs:     fs,
		path:   path,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultPath returns the log location inside workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DefaultFileName)
}

func (l *Log) Path() string {
	return l.path
}

// Append writes one entry and syncs it before returning. The file and its parent
// directory are created on first use.
func (l *Log) Append(verb domain.Verb, path string) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure log directory: %w", err)
		}
	}
	f, err := l.fs.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open operation log: %w", err)
	}
	if _, err := f.WriteString(FormatLine(verb, path) + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append operation log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync operation log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close operation log: %w", err)
	}
	l.logger.Debug().Str("log", l.path).Str("verb", string(verb)).Str("path", path).Msg("operation logged")
	return nil
}

// Read parses every recognised line in file order. Unrecognised lines are skipped.
func (l *Log) Read() ([]domain.LogEntry, error) {
	f, err := l.fs.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLogNotFound, l.path)
		}
		return nil, fmt.Errorf("open operation log: %w", err)
	}
	defer f.Close()

	var entries []domain.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		entry, ok := ParseLine(scanner.Text())
		if !ok {
			l.logger.Debug().Int("line", lineNo).Msg("skipping unrecognised log line")
			continue
		}
		entry.Line = lineNo
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read operation log: %w", err)
	}
	return entries, nil
}

// Paths returns the distinct paths of entries in first-seen order.
func Paths(entries []domain.LogEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.Path]; ok {
			continue
		}
		seen[entry.Path] = struct{}{}
		paths = append(paths, entry.Path)
	}
	return paths
}

// FormatLine renders an entry without the trailing newline. Paths that would not survive
// a trim or a line split are written as Go-quoted strings.
func FormatLine(verb domain.Verb, path string) string {
	if needsQuoting(path) {
		path = strconv.Quote(path)
	}
	return string(verb) + ": " + path
}

// ParseLine finds the first verb marker, matched case-insensitively, and takes the rest
// of the line as the path. Colons inside the path are kept.
func ParseLine(line string) (domain.LogEntry, bool) {
	line = strings.TrimRight(line, "\r")
	idx := indexFold(line, serializedMarker)
	if idx < 0 {
		return domain.LogEntry{}, false
	}

	verb := domain.VerbSerialized
	if idx >= len(deMarkerPrefix) && strings.EqualFold(line[idx-len(deMarkerPrefix):idx], deMarkerPrefix) {
		verb = domain.VerbDeserialized
	}

	path := strings.TrimSpace(line[idx+len(serializedMarker):])
	if strings.HasPrefix(path, `"`) {
		if unquoted, err := strconv.Unquote(path); err == nil {
			path = unquoted
		}
	}
	if path == "" {
		return domain.LogEntry{}, false
	}
	return domain.LogEntry{Verb: verb, Path: path}, true
}

// indexFold is a case-insensitive strings.Index for an ASCII marker. It compares byte
// windows of s itself, so the index is always valid for slicing s.
func indexFold(s, marker string) int {
	for i := 0; i+len(marker) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}

func needsQuoting(path string) bool {
	return strings.ContainsAny(path, "\r\n") ||
		strings.TrimSpace(path) != path ||
		strings.HasPrefix(path, `"`)
}
