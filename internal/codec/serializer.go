package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rpattn/datastash/internal/domain"
)

const timestampLayout = "20060102-150405"

// maxCollisionSuffix bounds the -N counter used when a timestamped name is taken.
const maxCollisionSuffix = 10000

// Serializer writes LoadedValues into a workspace directory.
type Serializer struct {
	fs     afero.Fs
	logger zerolog.Logger
	now    func() time.Time
}

type SerializerOption func(*Serializer)

// WithClock overrides the clock used to timestamp artifact names.
func WithClock(now func() time.Time) SerializerOption {
	return func(s *Serializer) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSerializerLogger(logger zerolog.Logger) SerializerOption {
	return func(s *Serializer) {
		s.logger = logger
	}
}

func NewSerializer(fs afero.Fs, opts ...SerializerOption) *Serializer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &Serializer{
		fs:     fs,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize writes value into workspace as {base}_{YYYYMMDD-HHMMSS}.{ext}, where base is
// the base name of originalName without its extension, and returns the absolute path.
//
// The workspace is checked first, then the format, then the JSON-to-JSON redundancy.
// Workspace and format problems are returned bare; everything else is a
// *domain.ItemError for originalName.
func (s *Serializer) Serialize(value domain.LoadedValue, workspace string, format domain.Format, originalName string) (string, error) {
	info, err := s.fs.Stat(workspace)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrWorkspaceNotFound, workspace)
	}
	if !format.Valid() {
		return "", fmt.Errorf("%w: %q (expected binary|json)", domain.ErrUnsupportedFormat, string(format))
	}
	if format == domain.FormatJSON && (domain.Ext(originalName) == ".json" || value.Source == domain.ContentKindJSON) {
		return "", domain.NewItemError(domain.ErrorKindUnsupported, originalName, domain.ErrRedundantFormat)
	}

	payload, err := encode(value, format)
	if err != nil {
		return "", domain.NewItemError(domain.ErrorKindUnsupported, originalName, err)
	}

	target, err := s.writeArtifact(workspace, artifactBase(originalName), format.Ext(), payload)
	if err != nil {
		return "", domain.NewItemError(domain.ErrorKindWrite, originalName, err)
	}

	s.logger.Debug().
		Str("source", originalName).
		Str("artifact", target).
		Str("format", string(format)).
		Int("bytes", len(payload)).
		Msg("artifact written")
	return target, nil
}

func encode(value domain.LoadedValue, format domain.Format) ([]byte, error) {
	if value.IsZero() {
		return nil, errors.New("no value to serialize")
	}
	switch format {
	case domain.FormatBinary:
		payload, err := encodeBinary(value)
		if err != nil {
			return nil, fmt.Errorf("encode cbor: %w", err)
		}
		return payload, nil
	case domain.FormatJSON:
		return encodeJSON(value)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, string(format))
	}
}

// encodeJSON writes text as a JSON string and JSON values as themselves. Tables and
// frames must be converted with JSONCompatible first.
func encodeJSON(value domain.LoadedValue) ([]byte, error) {
	var doc any
	switch value.Kind {
	case domain.ValueKindText:
		doc = value.Text
	case domain.ValueKindJSON:
		doc = value.JSON
	default:
		return nil, fmt.Errorf("%w: %s value", domain.ErrNotJSONRepresentable, value.Kind)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// writeArtifact writes payload to a temp file in workspace and renames it to the first
// free timestamped name.
func (s *Serializer) writeArtifact(workspace, base, ext string, payload []byte) (string, error) {
	tmp, err := afero.TempFile(s.fs, workspace, "."+base+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	target, err := s.freeName(workspace, base, ext)
	if err != nil {
		return "", err
	}
	if err := s.fs.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	cleanup = false

	if abs, err := filepath.Abs(target); err == nil {
		target = abs
	}
	return target, nil
}

func (s *Serializer) freeName(workspace, base, ext string) (string, error) {
	stamp := s.now().Format(timestampLayout)
	name := fmt.Sprintf("%s_%s.%s", base, stamp, ext)
	for n := 2; n <= maxCollisionSuffix; n++ {
		candidate := filepath.Join(workspace, name)
		if _, err := s.fs.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat artifact %s: %w", candidate, err)
		}
		name = fmt.Sprintf("%s_%s-%d.%s", base, stamp, n, ext)
	}
	return "", fmt.Errorf("no free artifact name for %s_%s.%s", base, stamp, ext)
}

// artifactBase returns the base name of a source path without its extension.
func artifactBase(originalName string) string {
	base := filepath.Base(strings.TrimSpace(originalName))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "artifact"
	}
	return base
}
