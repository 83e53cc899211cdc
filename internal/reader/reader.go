// Package reader loads source files into domain.LoadedValue according to their
// extension.
package reader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/internal/rdata"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

type decodeFunc func(r io.Reader, path string) (domain.LoadedValue, error)

// Reader dispatches on the source's content kind. It keeps no state between calls.
type Reader struct {
	fs       afero.Fs
	logger   zerolog.Logger
	decoders map[domain.ContentKind]decodeFunc
}

// Option customizes a Reader.
type Option func(*Reader)

// WithLogger sets the diagnostic logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// New creates a Reader over fs.
func New(fs afero.Fs, opts ...Option) *Reader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	r := &Reader{
		fs:     fs,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.decoders = map[domain.ContentKind]decodeFunc{
		domain.ContentKindCSV:   readCSV,
		domain.ContentKindJSON:  readJSON,
		domain.ContentKindExcel: readExcel,
		domain.ContentKindXML:   readXML,
		domain.ContentKindRData: r.readRData,
	}
	return r
}

// Read loads path. Every failure, including an unsupported extension, is returned as a
// *domain.ItemError and no value is produced.
func (r *Reader) Read(path string) (value domain.LoadedValue, err error) {
	kind := domain.KindForPath(path)
	decode, ok := r.decoders[kind]
	if !ok {
		r.logger.Warn().Str("path", path).Str("ext", domain.Ext(path)).Msg("unsupported file type")
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindUnsupported, path,
			fmt.Errorf("%w %q", domain.ErrUnsupportedType, domain.Ext(path)))
	}

	f, err := r.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindNotFound, path, domain.ErrSourceNotFound)
		}
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindRead, path, err)
	}
	defer f.Close()

	defer func() {
		if rec := recover(); rec != nil {
			value = domain.LoadedValue{}
			err = domain.NewItemError(domain.ErrorKindRead, path, fmt.Errorf("decoder panic: %v", rec))
		}
	}()

	value, err = decode(f, path)
	if err != nil {
		r.logger.Debug().Err(err).Str("path", path).Str("kind", string(kind)).Msg("read failed")
		var itemErr *domain.ItemError
		if errors.As(err, &itemErr) {
			return domain.LoadedValue{}, err
		}
		return domain.LoadedValue{}, domain.NewItemError(domain.ErrorKindRead, path, err)
	}
	value.Source = kind
	r.logger.Debug().Str("path", path).Str("kind", string(kind)).Str("value", string(value.Kind)).Msg("source read")
	return value, nil
}

func (r *Reader) readRData(src io.Reader, path string) (domain.LoadedValue, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	frames, err := rdata.Decode(src, name, rdata.WithLogger(r.logger))
	if err != nil {
		return domain.LoadedValue{}, err
	}
	return domain.FramesValue(domain.ContentKindRData, frames), nil
}
