package reader

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/datastash/internal/domain"

	"github.com/xuri/excelize/v2"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
}

type tableData struct {
	headers []string
	rows    [][]string
}

// readExcel loads the first sheet of a workbook as a typed frame. Legacy BIFF .xls
// workbooks cannot be opened by excelize and surface as read failures.
func readExcel(src io.Reader, _ string) (domain.LoadedValue, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return domain.LoadedValue{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.LoadedValue{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return domain.LoadedValue{}, fmt.Errorf("failed to read rows from sheet %s: %w", sheets[0], err)
	}

	table, err := normalizeTable(rows)
	if err != nil {
		return domain.LoadedValue{}, err
	}
	return domain.TableValue(domain.ContentKindExcel, buildFrame(table)), nil
}

// normalizeTable takes the first non-empty row as the header and pads or trims every
// data row to the header width.
func normalizeTable(records [][]string) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in sheet")
	}

	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return tableData{
		headers: headers,
		rows:    filterEmptyRows(dataRows),
	}, nil
}

func buildFrame(table tableData) *domain.Table {
	frame := &domain.Table{
		Columns: make([]domain.Column, len(table.headers)),
		Rows:    make([][]any, len(table.rows)),
	}
	for idx, header := range table.headers {
		frame.Columns[idx] = domain.Column{Name: header, Type: profileColumn(idx, table.rows)}
	}
	for rowIdx, row := range table.rows {
		cells := make([]any, len(table.headers))
		for colIdx := range table.headers {
			raw := strings.TrimSpace(row[colIdx])
			if raw == "" {
				continue
			}
			cells[colIdx] = coerceValue(frame.Columns[colIdx].Type, raw)
		}
		frame.Rows[rowIdx] = cells
	}
	return frame
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func filterEmptyRows(rows [][]string) [][]string {
	filtered := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(cleanRow(row)) > 0 {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// profileColumn picks the narrowest type every non-empty cell of the column satisfies.
func profileColumn(col int, rows [][]string) domain.FieldType {
	isBool := true
	isInt := true
	isFloat := true
	isTimestamp := true
	hasValue := false

	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		hasValue = true

		if !looksLikeBool(value) {
			isBool = false
		}
		if !looksLikeInt(value) {
			isInt = false
		}
		if !looksLikeFloat(value) {
			isFloat = false
		}
		if !looksLikeTimestamp(value) {
			isTimestamp = false
		}
	}

	switch {
	case !hasValue:
		return domain.FieldTypeString
	case isBool:
		return domain.FieldTypeBoolean
	case isInt:
		return domain.FieldTypeInteger
	case isFloat:
		return domain.FieldTypeFloat
	case isTimestamp:
		return domain.FieldTypeTimestamp
	default:
		return domain.FieldTypeString
	}
}

// looksLikeBool accepts words only; 0/1 columns are integers.
func looksLikeBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeInt(value string) bool {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	if f, ok := parseFinite(value); ok {
		return math.Mod(f, 1) == 0 && math.Abs(f) < math.MaxInt64
	}
	return false
}

func looksLikeFloat(value string) bool {
	_, ok := parseFinite(value)
	return ok
}

// parseFinite parses a decimal number. NaN and infinities are text, not numbers.
func parseFinite(value string) (float64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func looksLikeTimestamp(value string) bool {
	_, err := parseTimestamp(value)
	return err == nil
}

// coerceValue converts a profiled cell. Cells that do not coerce keep their raw text.
func coerceValue(fieldType domain.FieldType, raw string) any {
	switch fieldType {
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if f, ok := parseFinite(raw); ok && math.Mod(f, 1) == 0 {
			return int64(f)
		}
	case domain.FieldTypeFloat:
		if f, ok := parseFinite(raw); ok {
			return f
		}
	case domain.FieldTypeBoolean:
		switch strings.ToLower(raw) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	case domain.FieldTypeTimestamp:
		if ts, err := parseTimestamp(raw); err == nil {
			return ts.UTC().Format(time.RFC3339Nano)
		}
	}
	return raw
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
