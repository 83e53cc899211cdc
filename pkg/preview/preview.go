// Package preview renders short human-readable views of loaded values for console output.
package preview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpattn/datastash/internal/domain"
)

// DefaultLimit is the number of characters shown when no limit is configured.
const DefaultLimit = 100

// maxPreviewRows caps how many rows of a table are rendered before truncation.
const maxPreviewRows = 20

// Render returns at most limit characters describing value. A limit of zero or less
// disables truncation.
func Render(value domain.LoadedValue, limit int) string {
	return truncate(render(value), limit)
}

func render(value domain.LoadedValue) string {
	switch value.Kind {
	case domain.ValueKindText:
		return value.Text
	case domain.ValueKindJSON:
		return renderJSON(value.JSON)
	case domain.ValueKindTable:
		return renderTable(value.Table)
	case domain.ValueKindFrames:
		var b strings.Builder
		for i, name := range value.FrameNames() {
			if i > 0 {
				b.WriteByte('\n')
			}
			frame := value.Frames[name]
			fmt.Fprintf(&b, "%s [%d x %d]", name, frame.RowCount(), len(frame.Columns))
			if len(frame.Columns) > 0 {
				b.WriteString(": ")
				b.WriteString(strings.Join(frame.ColumnNames(), ", "))
			}
		}
		return b.String()
	default:
		return ""
	}
}

func renderJSON(doc any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func renderTable(table *domain.Table) string {
	if table == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(table.ColumnNames(), " | "))
	for i, row := range table.Rows {
		if i == maxPreviewRows {
			fmt.Fprintf(&b, "\n... %d more rows", len(table.Rows)-maxPreviewRows)
			break
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = Cell(cell)
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}

// Cell formats one table cell; missing values render as NA.
func Cell(v any) string {
	switch c := v.(type) {
	case nil:
		return "NA"
	case string:
		return c
	case float64:
		return fmt.Sprintf("%g", c)
	default:
		return fmt.Sprintf("%v", c)
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := 0
	for idx := range s {
		if runes == limit {
			return s[:idx]
		}
		runes++
	}
	return s
}
