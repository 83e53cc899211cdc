package reader

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rpattn/datastash/internal/domain"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newFixtureFs(t *testing.T, files map[string][]byte) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, content, 0o644))
	}
	return fs
}

func TestReadCSVKeepsRawText(t *testing.T) {
	fs := newFixtureFs(t, map[string][]byte{
		"/src/data.csv": []byte("a,b\n1,2"),
		"/src/bom.CSV":  append([]byte{0xEF, 0xBB, 0xBF}, []byte("x\n1\n")...),
	})
	r := New(fs)

	value, err := r.Read("/src/data.csv")
	require.NoError(t, err)
	assert.Equal(t, domain.ValueKindText, value.Kind)
	assert.Equal(t, domain.ContentKindCSV, value.Source)
	assert.Equal(t, "a,b\n1,2", value.Text)

	value, err = r.Read("/src/bom.CSV")
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n", value.Text)
}

func TestReadJSON(t *testing.T) {
	fs := newFixtureFs(t, map[string][]byte{
		"/src/obj.json":     []byte(`{"name": "Alice", "tags": ["a", "b"], "age": 30}`),
		"/src/list.json":    []byte(`[1, 2, 3]`),
		"/src/broken.json":  []byte(`{"name": `),
		"/src/trailer.json": []byte(`{} {}`),
	})
	r := New(fs)

	value, err := r.Read("/src/obj.json")
	require.NoError(t, err)
	assert.Equal(t, domain.ValueKindJSON, value.Kind)
	assert.Equal(t, map[string]any{"name": "Alice", "tags": []any{"a", "b"}, "age": 30.0}, value.JSON)

	value, err = r.Read("/src/list.json")
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, value.JSON)

	for _, path := range []string{"/src/broken.json", "/src/trailer.json"} {
		_, err = r.Read(path)
		require.Error(t, err, path)
		var itemErr *domain.ItemError
		require.True(t, errors.As(err, &itemErr))
		assert.Equal(t, domain.ErrorKindRead, itemErr.Kind)
		assert.Contains(t, err.Error(), path)
	}
}

func TestReadExcelBuildsTypedFrame(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{},
		{"Name", "Age", "Score", "Active", "Joined", "Name"},
		{"Alice", 30, 9.5, "true", "2024-01-02", "A"},
		{},
		{"Bob", 25, 7, "false", "2023-12-31"},
	}
	for idx, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	fs := newFixtureFs(t, map[string][]byte{"/src/people.xlsx": buf.Bytes()})
	value, err := New(fs).Read("/src/people.xlsx")
	require.NoError(t, err)
	require.Equal(t, domain.ValueKindTable, value.Kind)
	assert.Equal(t, domain.ContentKindExcel, value.Source)

	table := value.Table
	assert.Equal(t, []domain.Column{
		{Name: "Name", Type: domain.FieldTypeString},
		{Name: "Age", Type: domain.FieldTypeInteger},
		{Name: "Score", Type: domain.FieldTypeFloat},
		{Name: "Active", Type: domain.FieldTypeBoolean},
		{Name: "Joined", Type: domain.FieldTypeTimestamp},
		{Name: "Name_2", Type: domain.FieldTypeString},
	}, table.Columns)
	require.Equal(t, 2, table.RowCount())
	assert.Equal(t, []any{"Alice", int64(30), 9.5, true, "2024-01-02T00:00:00Z", "A"}, table.Rows[0])
	assert.Equal(t, []any{"Bob", int64(25), 7.0, false, "2023-12-31T00:00:00Z", nil}, table.Rows[1])
}

func TestReadXMLFlattensToString(t *testing.T) {
	fs := newFixtureFs(t, map[string][]byte{
		"/src/tree.xml": []byte(`<?xml version="1.0"?>
<!-- catalog -->
<catalog xmlns:x="urn:x"><book id="1" x:lang="en">Go &amp; more</book><empty/></catalog>
`),
		"/src/bad.xml": []byte(`<a><b></a>`),
	})
	r := New(fs)

	value, err := r.Read("/src/tree.xml")
	require.NoError(t, err)
	assert.Equal(t, domain.ValueKindText, value.Kind)
	assert.Equal(t, domain.ContentKindXML, value.Source)
	assert.Equal(t, `<catalog xmlns:x="urn:x"><book id="1" x:lang="en">Go &amp; more</book><empty></empty></catalog>`, value.Text)

	_, err = r.Read("/src/bad.xml")
	require.Error(t, err)
}

func TestReadFailuresAreItemErrors(t *testing.T) {
	fs := newFixtureFs(t, map[string][]byte{
		"/src/notes.txt":    []byte("hello"),
		"/src/corrupt.xlsx": []byte("not a zip"),
		"/src/broken.RData": []byte("garbage"),
	})
	r := New(fs)

	cases := map[string]domain.ErrorKind{
		"/src/notes.txt":    domain.ErrorKindUnsupported,
		"/src/missing.csv":  domain.ErrorKindNotFound,
		"/src/corrupt.xlsx": domain.ErrorKindRead,
		"/src/broken.RData": domain.ErrorKindRead,
	}
	for path, kind := range cases {
		value, err := r.Read(path)
		require.Error(t, err, path)
		assert.True(t, value.IsZero(), path)

		var itemErr *domain.ItemError
		require.True(t, errors.As(err, &itemErr), path)
		assert.Equal(t, kind, itemErr.Kind, path)
		assert.Equal(t, path, itemErr.Path)
	}

	_, err := r.Read("/src/notes.txt")
	assert.True(t, errors.Is(err, domain.ErrUnsupportedType))
}

func TestSanitizeHeaders(t *testing.T) {
	got := sanitizeHeaders([]string{" first name ", "a.b", "", "a.b", "-x-"})
	assert.Equal(t, []string{"first_name", "a_b", "column_3", "a_b_2", "x"}, got)
}

func TestReadExcelKeepsNonFiniteWordsAsText(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"x", "y"},
		{"NaN", "1.5"},
		{"Inf", "-infinity"},
	}
	for idx, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	fs := newFixtureFs(t, map[string][]byte{"/src/odd.xlsx": buf.Bytes()})
	value, err := New(fs).Read("/src/odd.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []domain.Column{
		{Name: "x", Type: domain.FieldTypeString},
		{Name: "y", Type: domain.FieldTypeString},
	}, value.Table.Columns)
	assert.Equal(t, [][]any{{"NaN", "1.5"}, {"Inf", "-infinity"}}, value.Table.Rows)
	assert.True(t, value.Equal(value))
}

func TestProfileColumnRejectsNonFiniteNumbers(t *testing.T) {
	for _, raw := range []string{"NaN", "nan", "Inf", "+Inf", "-inf", "infinity", "1e400"} {
		assert.Equal(t, domain.FieldTypeString, profileColumn(0, [][]string{{raw}}), raw)
	}
	assert.Equal(t, domain.FieldTypeFloat, profileColumn(0, [][]string{{"1.5"}, {"2"}}))
}
