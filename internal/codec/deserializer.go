package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rpattn/datastash/internal/domain"
)

// Deserializer loads artifacts written by Serializer.
type Deserializer struct {
	fs     afero.Fs
	logger zerolog.Logger
}

type DeserializerOption func(*Deserializer)

func WithDeserializerLogger(logger zerolog.Logger) DeserializerOption {
	return func(d *Deserializer) {
		d.logger = logger
	}
}

func NewDeserializer(fs afero.Fs, opts ...DeserializerOption) *Deserializer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	d := &Deserializer{
		fs:     fs,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deserialize loads path by its extension. Failures are always *domain.ItemError values
// whose message names path; a successful result is never confused with an error.
func (d *Deserializer) Deserialize(path string) (domain.LoadedValue, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindNotFound, path, domain.ErrSourceNotFound)
		}
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindRead, path, err)
	}
	if info.IsDir() {
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindNotFound, path, domain.ErrSourceNotFound)
	}

	format, ok := domain.FormatForPath(path)
	if !ok {
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindUnsupported, path,
			fmt.Errorf("%w %q", domain.ErrUnsupportedType, domain.Ext(path)))
	}

	payload, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindRead, path, err)
	}

	var value domain.LoadedValue
	switch format {
	case domain.FormatBinary:
		value, err = decodeBinary(payload)
	case domain.FormatJSON:
		value, err = decodeJSON(payload)
	}
	if err != nil {
		d.logger.Debug().Err(err).Str("path", path).Msg("artifact decode failed")
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindDecode, path, fmt.Errorf("%w: %w", domain.ErrDecode, err))
	}

	d.logger.Debug().Str("path", path).Str("kind", string(value.Kind)).Msg("artifact loaded")
	return value, nil
}

// decodeJSON yields a text value for a bare JSON string, the document otherwise.
func decodeJSON(payload []byte) (domain.LoadedValue, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return domain.LoadedValue{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.LoadedValue{}, errors.New("trailing data after document")
	}
	if text, ok := doc.(string); ok {
		return domain.TextValue(domain.ContentKindUnknown, text), nil
	}
	return domain.JSONValue(domain.ContentKindUnknown, doc), nil
}
