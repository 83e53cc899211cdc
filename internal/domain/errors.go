package domain

import (
	"errors"
	"fmt"
)

// Request-invalid errors abort only the operation that received them.
var (
	ErrWorkspaceNotFound = errors.New("workspace path does not exist")
	ErrUnsupportedFormat = errors.New("unsupported serialization format")
	ErrRedundantFormat   = errors.New("cannot serialize a .json file as .json again")
	ErrNoPaths           = errors.New("no paths provided for data sources or workspace")
	ErrLogNotFound       = errors.New("operation log does not exist")
)

// Per-item errors are recorded against one path and never stop a batch.
var (
	ErrSourceNotFound       = errors.New("file does not exist")
	ErrUnsupportedType      = errors.New("unsupported file type")
	ErrNotJSONRepresentable = errors.New("value is not representable as JSON")
	ErrCodecUnavailable     = errors.New("no codec available")
	ErrDecode               = errors.New("decode failed")
)

// ErrorKind classifies an ItemError.
type ErrorKind string

const (
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindUnsupported ErrorKind = "unsupported"
	ErrorKindRead        ErrorKind = "read"
	ErrorKindDecode      ErrorKind = "decode"
	ErrorKindWrite       ErrorKind = "write"
)

// ItemError is a recoverable failure tied to a single path.
type ItemError struct {
	Kind ErrorKind
	Path string
	Err  error
}

// NewItemError wraps err for path.
func NewItemError(kind ErrorKind, path string, err error) *ItemError {
	return &ItemError{Kind: kind, Path: path, Err: err}
}

func (e *ItemError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Path)
}

func (e *ItemError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRequestInvalid reports whether err invalidates a whole request rather than one item.
func IsRequestInvalid(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrNoPaths) ||
		errors.Is(err, ErrLogNotFound)
}
