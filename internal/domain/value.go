package domain

import (
	"reflect"
	"sort"
)

// FieldType represents the type of a table column.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
)

// Column describes one named column of a Table.
type Column struct {
	Name string    `json:"name" cbor:"name"`
	Type FieldType `json:"type" cbor:"type"`
}

// Table is a tabular frame: rows of cells under named columns. Cells hold string,
// int64, float64, bool or nil (missing). Timestamps are kept as RFC 3339 strings.
type Table struct {
	Columns []Column `json:"columns" cbor:"columns"`
	Rows    [][]any  `json:"rows" cbor:"rows"`
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Records converts the table into a JSON compatible list of row objects.
func (t *Table) Records() []any {
	if t == nil {
		return []any{}
	}
	records := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for idx, col := range t.Columns {
			if idx < len(row) {
				record[col.Name] = row[idx]
			} else {
				record[col.Name] = nil
			}
		}
		records = append(records, record)
	}
	return records
}

// ValueKind tags the active member of a LoadedValue.
type ValueKind string

const (
	ValueKindText   ValueKind = "text"
	ValueKindJSON   ValueKind = "json"
	ValueKindTable  ValueKind = "table"
	ValueKindFrames ValueKind = "frames"
)

// LoadedValue is the in-memory content of one source file or artifact. Exactly one of
// Text, JSON, Table or Frames is meaningful, selected by Kind.
type LoadedValue struct {
	Kind   ValueKind
	Source ContentKind
	Text   string
	JSON   any
	Table  *Table
	Frames map[string]*Table
}

// TextValue wraps raw text.
func TextValue(source ContentKind, text string) LoadedValue {
	return LoadedValue{Kind: ValueKindText, Source: source, Text: text}
}

// JSONValue wraps a decoded JSON document (mapping, sequence or scalar).
func JSONValue(source ContentKind, v any) LoadedValue {
	return LoadedValue{Kind: ValueKindJSON, Source: source, JSON: v}
}

// TableValue wraps a single frame.
func TableValue(source ContentKind, t *Table) LoadedValue {
	return LoadedValue{Kind: ValueKindTable, Source: source, Table: t}
}

// FramesValue wraps a mapping of named frames.
func FramesValue(source ContentKind, frames map[string]*Table) LoadedValue {
	return LoadedValue{Kind: ValueKindFrames, Source: source, Frames: frames}
}

// IsZero reports whether no value was produced.
func (v LoadedValue) IsZero() bool {
	return v.Kind == ""
}

// JSONRepresentable reports whether v can be written as JSON without conversion.
func (v LoadedValue) JSONRepresentable() bool {
	return v.Kind == ValueKindText || v.Kind == ValueKindJSON
}

// JSONCompatible converts tabular values into JSON compatible records. Text and JSON
// values are returned unchanged.
func (v LoadedValue) JSONCompatible() LoadedValue {
	switch v.Kind {
	case ValueKindTable:
		return JSONValue(v.Source, v.Table.Records())
	case ValueKindFrames:
		out := make(map[string]any, len(v.Frames))
		for name, frame := range v.Frames {
			out[name] = frame.Records()
		}
		return JSONValue(v.Source, out)
	default:
		return v
	}
}

// FrameNames returns the frame names in sorted order.
func (v LoadedValue) FrameNames() []string {
	names := make([]string, 0, len(v.Frames))
	for name := range v.Frames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal compares the payloads of two values. The source kind is ignored.
func (v LoadedValue) Equal(other LoadedValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueKindText:
		return v.Text == other.Text
	case ValueKindJSON:
		return reflect.DeepEqual(v.JSON, other.JSON)
	case ValueKindTable:
		return reflect.DeepEqual(v.Table, other.Table)
	case ValueKindFrames:
		return reflect.DeepEqual(v.Frames, other.Frames)
	default:
		return true
	}
}
