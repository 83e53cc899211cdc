package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/rpattn/datastash/internal/codec"
	"github.com/rpattn/datastash/internal/domain"
	"github.com/rpattn/datastash/internal/oplog"
)

var generatedAt = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

func buildFixture(t *testing.T) (afero.Fs, Report) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/ws", 0o755))

	serializer := codec.NewSerializer(fs, codec.WithClock(func() time.Time { return generatedAt }))
	tablePath, err := serializer.Serialize(domain.TableValue(domain.ContentKindExcel, &domain.Table{
		Columns: []domain.Column{{Name: "a"}, {Name: "b"}},
		Rows:    [][]any{{int64(1), "x"}, {int64(2), "y"}, {int64(3), nil}},
	}), "/ws", domain.FormatBinary, "book.xlsx")
	require.NoError(t, err)
	jsonPath, err := serializer.Serialize(domain.JSONValue(domain.ContentKindXML, map[string]any{"z": 1.0, "a": "b"}), "/ws", domain.FormatJSON, "tree.xml")
	require.NoError(t, err)

	log := oplog.New(fs, "/ws/serialization_log.txt")
	require.NoError(t, log.Append(domain.VerbSerialized, tablePath))
	require.NoError(t, log.Append(domain.VerbSerialized, jsonPath))
	require.NoError(t, log.Append(domain.VerbSerialized, "/ws/deleted.cbor"))
	require.NoError(t, log.Append(domain.VerbDeserialized, tablePath))

	service := NewService(fs, codec.NewDeserializer(fs), WithClock(func() time.Time { return generatedAt }))
	report, err := service.Build(context.Background(), "/ws/serialization_log.txt")
	require.NoError(t, err)
	return fs, report
}

func TestBuildSummarizesDistinctArtifacts(t *testing.T) {
	fs, report := buildFixture(t)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, 1, report.Failed())

	records := report.Records()
	assert.Equal(t, "/ws/book_20240305-140709.cbor", records[0][0])
	assert.Equal(t, "Deserialized", records[0][1])
	assert.Equal(t, "table", records[0][2])
	assert.Equal(t, "excel", records[0][3])
	assert.Equal(t, "3x2", records[0][5])
	assert.Equal(t, "ok", records[0][6])

	assert.Equal(t, []string{"/ws/tree_20240305-140709.json", "Serialized", "json", "unknown"}, records[1][:4])
	assert.Equal(t, "keys: a, z", records[1][5])

	assert.Equal(t, "-", records[2][4])
	assert.Contains(t, records[2][6], "file does not exist")

	entries, err := oplog.New(fs, "/ws/serialization_log.txt").Read()
	require.NoError(t, err)
	assert.Len(t, entries, 4, "building a report must not append to the log")
}

func TestBuildMissingLog(t *testing.T) {
	service := NewService(afero.NewMemMapFs(), codec.NewDeserializer(nil))
	_, err := service.Build(context.Background(), "/nope.txt")
	assert.True(t, errors.Is(err, domain.ErrLogNotFound))
}

func TestShape(t *testing.T) {
	cases := map[string]struct {
		value domain.LoadedValue
		want  string
	}{
		"text":     {value: domain.TextValue(domain.ContentKindCSV, "héllo"), want: "5 characters"},
		"sequence": {value: domain.JSONValue(domain.ContentKindJSON, []any{1.0, 2.0}), want: "2 items"},
		"scalar":   {value: domain.JSONValue(domain.ContentKindJSON, true), want: "scalar"},
		"frames": {value: domain.FramesValue(domain.ContentKindRData, map[string]*domain.Table{
			"b": {Columns: []domain.Column{{Name: "x"}}, Rows: [][]any{{1.0}}},
			"a": {},
		}), want: "2 frames: a 0x0, b 1x1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Shape(tc.value))
		})
	}
}

func TestWriteTable(t *testing.T) {
	_, report := buildFixture(t)
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, OutputTable))

	out := buf.String()
	for _, label := range Labels() {
		assert.Contains(t, out, label)
	}
	assert.Contains(t, out, "book_20240305-140709.cbor")
	assert.True(t, strings.HasSuffix(out, "3 artifacts, 1 failed\n"))
}

func TestWriteYAML(t *testing.T) {
	_, report := buildFixture(t)
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, OutputYAML))

	var decoded struct {
		Log         string              `yaml:"log"`
		GeneratedAt string              `yaml:"generated_at"`
		Artifacts   []map[string]string `yaml:"artifacts"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/ws/serialization_log.txt", decoded.Log)
	assert.Equal(t, "2024-03-05T14:07:09Z", decoded.GeneratedAt)
	require.Len(t, decoded.Artifacts, 3)
	assert.Equal(t, "3x2", decoded.Artifacts[0]["shape"])
	assert.Equal(t, "ok", decoded.Artifacts[0]["status"])

	assert.Less(t, strings.Index(buf.String(), "path:"), strings.Index(buf.String(), "status:"))
}

func TestWriteXLSX(t *testing.T) {
	fs, report := buildFixture(t)
	require.NoError(t, report.WriteXLSX(fs, "/ws/report.xlsx"))

	f, err := fs.Open("/ws/report.xlsx")
	require.NoError(t, err)
	defer f.Close()
	book, err := excelize.OpenReader(f)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Labels(), rows[0])
	assert.Equal(t, "/ws/book_20240305-140709.cbor", rows[1][0])
}

func TestParseOutput(t *testing.T) {
	out, err := ParseOutput("YAML")
	require.NoError(t, err)
	assert.Equal(t, OutputYAML, out)
	out, err = ParseOutput("")
	require.NoError(t, err)
	assert.Equal(t, OutputTable, out)
	_, err = ParseOutput("html")
	assert.Error(t, err)
}

func TestDefaultXLSXName(t *testing.T) {
	assert.Equal(t, "serialization_log-report-20240305-140709.xlsx", DefaultXLSXName("/ws/serialization_log.txt", generatedAt))
	assert.Equal(t, "my-log-report-20240305-140709.xlsx", DefaultXLSXName(`C:\ws\My Log.txt`, generatedAt))
}

func TestTruncateErrorCutsOnCharacterBoundary(t *testing.T) {
	msg := truncateError(errors.New("x" + strings.Repeat("é", 600)))
	assert.True(t, utf8.ValidString(msg))
	assert.Equal(t, 512, utf8.RuneCountInString(msg))

	assert.Equal(t, "short", truncateError(errors.New("short")))
}
