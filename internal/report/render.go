package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

const sheetName = "Artifacts"

// Output selects how a report is rendered.
type Output string

const (
	OutputTable Output = "table"
	OutputYAML  Output = "yaml"
)

func ParseOutput(raw string) (Output, error) {
	switch Output(strings.ToLower(strings.TrimSpace(raw))) {
	case OutputTable, "":
		return OutputTable, nil
	case OutputYAML:
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("unknown report output %q (expected table|yaml)", raw)
	}
}

func (r Report) Write(w io.Writer, out Output) error {
	switch out {
	case OutputYAML:
		return r.WriteYAML(w)
	default:
		return r.WriteTable(w)
	}
}

// WriteTable renders the report as a text table.
func (r Report) WriteTable(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(Labels())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	for _, record := range r.Records() {
		table.Append(record)
	}
	table.Render()
	_, err := fmt.Fprintf(w, "%d artifacts, %d failed\n", len(r.Rows), r.Failed())
	return err
}

// WriteYAML renders the report as a YAML document whose row keys follow column order.
func (r Report) WriteYAML(w io.Writer) error {
	rows := &yaml.Node{Kind: yaml.SequenceNode}
	for _, record := range r.Records() {
		row := &yaml.Node{Kind: yaml.MappingNode}
		for i, col := range Columns {
			row.Content = append(row.Content, scalar(col.Key), scalar(record[i]))
		}
		rows.Content = append(rows.Content, row)
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content,
		scalar("log"), scalar(r.LogPath),
		scalar("generated_at"), scalar(r.GeneratedAt.UTC().Format(time.RFC3339)),
		scalar("artifacts"), rows,
	)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return enc.Close()
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// WriteXLSX writes the report as a single-sheet workbook at path.
func (r Report) WriteXLSX(fs afero.Fs, path string) error {
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	if err := book.SetSheetName(book.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, label := range Labels() {
		header[i] = label
	}
	if err := book.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if style, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
		_ = book.SetCellStyle(sheetName, "A1", last, style)
	}

	for i, record := range r.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(record))
		for j, v := range record {
			values[j] = v
		}
		if err := book.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	_ = book.SetColWidth(sheetName, "A", "A", 60)

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	if err := book.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	return f.Close()
}

// DefaultXLSXName derives a workbook file name from the log it summarizes.
func DefaultXLSXName(logPath string, now time.Time) string {
	base := logPath
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	base = sanitizeFileComponent(base)
	if base == "" {
		base = "report"
	}
	return fmt.Sprintf("%s-report-%s.xlsx", base, now.Format("20060102-150405"))
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}
