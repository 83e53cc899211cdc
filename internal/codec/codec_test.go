package codec

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/datastash/internal/domain"
)

const workspace = "/ws"

var fixedNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func newWorkspaceFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(workspace, 0o755))
	return fs
}

func sampleTable() *domain.Table {
	return &domain.Table{
		Columns: []domain.Column{
			{Name: "name", Type: domain.FieldTypeString},
			{Name: "age", Type: domain.FieldTypeInteger},
			{Name: "score", Type: domain.FieldTypeFloat},
			{Name: "active", Type: domain.FieldTypeBoolean},
		},
		Rows: [][]any{
			{"Alice", int64(30), 9.5, true},
			{"Bob", int64(-4), 7.0, nil},
		},
	}
}

func TestSerializeCSVTextAsJSON(t *testing.T) {
	fs := newWorkspaceFs(t)
	serializer := NewSerializer(fs, WithClock(func() time.Time { return fixedNow }))

	path, err := serializer.Serialize(domain.TextValue(domain.ContentKindCSV, "a,b\n1,2"), workspace, domain.FormatJSON, "/data/data.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workspace, "data_20240305-140709.json"), path)

	content, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, `"a,b\n1,2"`, string(content))

	value, err := NewDeserializer(fs).Deserialize(path)
	require.NoError(t, err)
	assert.Equal(t, domain.ValueKindText, value.Kind)
	assert.Equal(t, "a,b\n1,2", value.Text)
}

func TestRoundTrips(t *testing.T) {
	cases := []struct {
		name   string
		value  domain.LoadedValue
		format domain.Format
		source string
	}{
		{name: "text binary", value: domain.TextValue(domain.ContentKindCSV, "x,y\n"), format: domain.FormatBinary, source: "a.csv"},
		{name: "xml text json", value: domain.TextValue(domain.ContentKindXML, `<a b="1">&amp;</a>`), format: domain.FormatJSON, source: "a.xml"},
		{name: "json binary", value: domain.JSONValue(domain.ContentKindJSON, map[string]any{
			"name":   "Alice",
			"nested": map[string]any{"list": []any{1.0, "two", nil, false}},
			"empty":  map[string]any{},
		}), format: domain.FormatBinary, source: "a.json"},
		{name: "json scalar binary", value: domain.JSONValue(domain.ContentKindJSON, 42.0), format: domain.FormatBinary, source: "n.json"},
		{name: "table binary", value: domain.TableValue(domain.ContentKindExcel, sampleTable()), format: domain.FormatBinary, source: "book.xlsx"},
		{name: "frames binary", value: domain.FramesValue(domain.ContentKindRData, map[string]*domain.Table{
			"df": sampleTable(),
			"x":  {Columns: []domain.Column{{Name: "x", Type: domain.FieldTypeFloat}}, Rows: [][]any{{1.5}, {nil}}},
		}), format: domain.FormatBinary, source: "ws.RData"},
		{name: "json from excel records", value: domain.JSONValue(domain.ContentKindExcel, []any{
			map[string]any{"a": 1.0},
		}), format: domain.FormatJSON, source: "book.xlsx"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newWorkspaceFs(t)
			path, err := NewSerializer(fs).Serialize(tc.value, workspace, tc.format, tc.source)
			require.NoError(t, err)
			assert.Equal(t, "."+tc.format.Ext(), filepath.Ext(path))

			got, err := NewDeserializer(fs).Deserialize(path)
			require.NoError(t, err)
			assert.True(t, tc.value.Equal(got), "round trip mismatch: %#v", got)
		})
	}
}

func TestBinaryKeepsSourceKind(t *testing.T) {
	fs := newWorkspaceFs(t)
	path, err := NewSerializer(fs).Serialize(domain.TableValue(domain.ContentKindExcel, sampleTable()), workspace, domain.FormatBinary, "book.xlsx")
	require.NoError(t, err)

	got, err := NewDeserializer(fs).Deserialize(path)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentKindExcel, got.Source)
	assert.Equal(t, []string{"name", "age", "score", "active"}, got.Table.ColumnNames())
}

func TestSerializeRejectsRedundantJSON(t *testing.T) {
	fs := newWorkspaceFs(t)
	serializer := NewSerializer(fs)

	values := []domain.LoadedValue{
		domain.JSONValue(domain.ContentKindJSON, map[string]any{}),
		domain.JSONValue(domain.ContentKindJSON, []any{1.0}),
		domain.TextValue(domain.ContentKindUnknown, "anything"),
	}
	for _, value := range values {
		_, err := serializer.Serialize(value, workspace, domain.FormatJSON, "/src/Input.JSON")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrRedundantFormat))
	}

	entries, err := afero.ReadDir(fs, workspace)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSerializeValidationOrder(t *testing.T) {
	fs := newWorkspaceFs(t)
	serializer := NewSerializer(fs)
	value := domain.JSONValue(domain.ContentKindJSON, map[string]any{})

	_, err := serializer.Serialize(value, "/missing", domain.Format("yaml"), "a.json")
	assert.True(t, errors.Is(err, domain.ErrWorkspaceNotFound))
	assert.True(t, domain.IsRequestInvalid(err))

	_, err = serializer.Serialize(value, workspace, domain.Format("yaml"), "a.json")
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))

	require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0o644))
	_, err = serializer.Serialize(value, "/file", domain.FormatBinary, "a.json")
	assert.True(t, errors.Is(err, domain.ErrWorkspaceNotFound))
}

func TestSerializeTableAsJSONNeedsConversion(t *testing.T) {
	fs := newWorkspaceFs(t)
	serializer := NewSerializer(fs)
	value := domain.TableValue(domain.ContentKindExcel, sampleTable())

	_, err := serializer.Serialize(value, workspace, domain.FormatJSON, "book.xlsx")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotJSONRepresentable))
	var itemErr *domain.ItemError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, "book.xlsx", itemErr.Path)

	path, err := serializer.Serialize(value.JSONCompatible(), workspace, domain.FormatJSON, "book.xlsx")
	require.NoError(t, err)
	got, err := NewDeserializer(fs).Deserialize(path)
	require.NoError(t, err)
	require.Equal(t, domain.ValueKindJSON, got.Kind)
	records, ok := got.JSON.([]any)
	require.True(t, ok)
	require.Len(t, records, 2)
	assert.Equal(t, "Alice", records[0].(map[string]any)["name"])
}

func TestSerializeSameSecondGetsDistinctNames(t *testing.T) {
	fs := newWorkspaceFs(t)
	serializer := NewSerializer(fs, WithClock(func() time.Time { return fixedNow }))
	value := domain.TextValue(domain.ContentKindCSV, "a")

	first, err := serializer.Serialize(value, workspace, domain.FormatBinary, "data.csv")
	require.NoError(t, err)
	second, err := serializer.Serialize(value, workspace, domain.FormatBinary, "data.csv")
	require.NoError(t, err)
	third, err := serializer.Serialize(value, workspace, domain.FormatBinary, "data.csv")
	require.NoError(t, err)

	assert.Equal(t, "/ws/data_20240305-140709.cbor", first)
	assert.Equal(t, "/ws/data_20240305-140709-2.cbor", second)
	assert.Equal(t, "/ws/data_20240305-140709-3.cbor", third)

	later := NewSerializer(fs, WithClock(func() time.Time { return fixedNow.Add(time.Second) }))
	fourth, err := later.Serialize(value, workspace, domain.FormatBinary, "data.csv")
	require.NoError(t, err)
	assert.Equal(t, "/ws/data_20240305-140710.cbor", fourth)

	entries, err := afero.ReadDir(fs, workspace)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "temp files must not be left behind")
}

func TestDeserializeFailures(t *testing.T) {
	fs := newWorkspaceFs(t)
	require.NoError(t, afero.WriteFile(fs, "/ws/notes.txt", []byte("hi"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ws/broken.cbor", []byte{0xff, 0x00}, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ws/broken.json", []byte(`{"a":`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ws/twice.json", []byte(`1 2`), 0o644))

	wrongVersion, err := encMode.Marshal(envelope{Version: 9, Kind: domain.ValueKindText})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/ws/future.cbor", wrongVersion, 0o644))

	cases := []struct {
		path string
		kind domain.ErrorKind
		want error
	}{
		{path: "/ws/gone.json", kind: domain.ErrorKindNotFound, want: domain.ErrSourceNotFound},
		{path: "/ws", kind: domain.ErrorKindNotFound, want: domain.ErrSourceNotFound},
		{path: "/ws/notes.txt", kind: domain.ErrorKindUnsupported, want: domain.ErrUnsupportedType},
		{path: "/ws/broken.cbor", kind: domain.ErrorKindDecode, want: domain.ErrDecode},
		{path: "/ws/broken.json", kind: domain.ErrorKindDecode, want: domain.ErrDecode},
		{path: "/ws/twice.json", kind: domain.ErrorKindDecode, want: domain.ErrDecode},
		{path: "/ws/future.cbor", kind: domain.ErrorKindDecode, want: domain.ErrDecode},
	}

	deserializer := NewDeserializer(fs)
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			value, err := deserializer.Deserialize(tc.path)
			require.Error(t, err)
			assert.True(t, value.IsZero())
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Contains(t, err.Error(), tc.path)

			var itemErr *domain.ItemError
			require.True(t, errors.As(err, &itemErr))
			assert.Equal(t, tc.kind, itemErr.Kind)
		})
	}
}

func TestDeserializeJSONString(t *testing.T) {
	fs := newWorkspaceFs(t)
	require.NoError(t, afero.WriteFile(fs, "/ws/s.json", []byte(`"does not exist: /x"`), 0o644))

	value, err := NewDeserializer(fs).Deserialize("/ws/s.json")
	require.NoError(t, err)
	assert.Equal(t, domain.ValueKindText, value.Kind)
	assert.Equal(t, "does not exist: /x", value.Text)
}

func TestArtifactBase(t *testing.T) {
	assert.Equal(t, "data", artifactBase("/tmp/data.csv"))
	assert.Equal(t, "archive.tar", artifactBase("archive.tar.gz"))
	assert.Equal(t, "noext", artifactBase("dir/noext"))
	assert.Equal(t, "artifact", artifactBase(""))
}
