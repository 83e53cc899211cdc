package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ContentKind identifies the structure of a source file. It is resolved once from the
// file extension when the file is read and then travels with the loaded value.
type ContentKind string

const (
	ContentKindCSV     ContentKind = "csv"
	ContentKindJSON    ContentKind = "json"
	ContentKindExcel   ContentKind = "excel"
	ContentKindXML     ContentKind = "xml"
	ContentKindRData   ContentKind = "rdata"
	ContentKindUnknown ContentKind = "unknown"
)

var contentKindsByExt = map[string]ContentKind{
	".csv":   ContentKindCSV,
	".json":  ContentKindJSON,
	".xls":   ContentKindExcel,
	".xlsx":  ContentKindExcel,
	".xml":   ContentKindXML,
	".r":     ContentKindRData,
	".rdata": ContentKindRData,
	".rda":   ContentKindRData,
	".rds":   ContentKindRData,
}

// Ext returns the lowercased extension of path, including the leading dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// KindForPath resolves the content kind of a source path from its extension.
func KindForPath(path string) ContentKind {
	if kind, ok := contentKindsByExt[Ext(path)]; ok {
		return kind
	}
	return ContentKindUnknown
}

// Format is the persistent encoding an artifact is written in.
type Format string

const (
	// FormatBinary is a self-describing binary object graph (CBOR).
	FormatBinary Format = "binary"
	// FormatJSON is pretty-printed JSON text.
	FormatJSON Format = "json"
)

// Formats lists the supported artifact formats.
var Formats = []Format{FormatBinary, FormatJSON}

// ParseFormat normalizes a user supplied format tag.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "binary", "cbor", "pickle", "pkl":
		return FormatBinary, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (expected binary|json)", ErrUnsupportedFormat, raw)
	}
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return f == FormatBinary || f == FormatJSON
}

// Ext returns the artifact file extension for f, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatBinary:
		return "cbor"
	case FormatJSON:
		return "json"
	default:
		return ""
	}
}

// FormatForPath resolves the artifact format from an artifact's extension.
func FormatForPath(path string) (Format, bool) {
	switch Ext(path) {
	case ".cbor":
		return FormatBinary, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}
