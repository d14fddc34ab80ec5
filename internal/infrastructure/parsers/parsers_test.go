package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func collect(t *testing.T, reader CorpusReader, path string) ([]string, Stats) {
	t.Helper()
	var stats Stats
	var out []string
	for text, err := range reader.Stream(context.Background(), path, &stats) {
		require.NoError(t, err)
		out = append(out, text)
	}
	return out, stats
}

func TestCSVReader_Stream(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tweets.csv", `id,text,user
1,Hola gente!!,pedro
2,  re loco  ,ana
3,,juan
4,"con, coma",luz
`)

	records, stats := collect(t, NewCSVReader(nil), path)

	assert.Equal(t, []string{"Hola gente!!", "re loco", "con, coma"}, records)
	assert.Equal(t, 4, stats.TotalRows)
	assert.Equal(t, 1, stats.SkippedRows)
}

func TestCSVReader_FirstColumnWhenFieldEmpty(t *testing.T) {
	config := DefaultReaderConfig()
	config.TextField = ""

	records, err := NewReaderFactory(config).Read(context.Background(),
		writeFile(t, t.TempDir(), "a.csv", "mensaje,otro\nhola,x\nchau,y\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hola", "chau"}, records.Records)
}

func TestCSVReader_MissingColumn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.csv", "id,body\n1,hola\n")

	var got error
	for _, err := range NewCSVReader(nil).Stream(context.Background(), path, nil) {
		got = err
	}
	require.Error(t, got)
	assert.Contains(t, got.Error(), `column "text" not found`)
}

func TestCSVReader_StreamReader(t *testing.T) {
	var out []string
	for text, err := range NewCSVReader(nil).StreamReader(context.Background(),
		strings.NewReader("Text\nuno\ndos\n"), nil) {
		require.NoError(t, err)
		out = append(out, text)
	}
	assert.Equal(t, []string{"uno", "dos"}, out)
}

func TestJSONReader_Shapes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{"array of strings", `["hola", "chau"]`, []string{"hola", "chau"}},
		{"array of objects", `[{"text": "hola", "n": 1}, {"n": 2}, {"text": "chau"}]`, []string{"hola", "chau"}},
		{"mixed array", `["uno", {"text": "dos"}, 3]`, []string{"uno", "dos"}},
		{"single object", `{"id": 7, "text": "solo"}`, []string{"solo"}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, filepath.Base(tt.name)+string(rune('a'+i))+".json", tt.content)
			records, _ := collect(t, NewJSONReader(nil), path)
			assert.Equal(t, tt.expected, records)
		})
	}
}

func TestJSONReader_RejectsScalar(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.json", `"just a string"`)

	var got error
	for _, err := range NewJSONReader(nil).Stream(context.Background(), path, nil) {
		got = err
	}
	assert.Error(t, got)
}

func TestJSONLReader_SkipsEmptyAndMalformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tweets.jsonl", `{"text": "hola"}

{not json}
{"text": 42}
{"text": "chau"}
`)

	records, stats := collect(t, NewJSONLReader(nil), path)
	assert.Equal(t, []string{"hola", "chau"}, records)
	assert.Equal(t, 5, stats.TotalRows)
	assert.Equal(t, 3, stats.SkippedRows)
}

func TestJSONLReader_AllVariants(t *testing.T) {
	factory := NewReaderFactory(nil)
	for _, ext := range []string{".jsonl", ".ndjson", ".jsonnl"} {
		reader, err := factory.GetReader(ext)
		require.NoError(t, err)
		assert.Equal(t, "JSONL", reader.Format())
	}
}

func TestExcelReader_Stream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tweets.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"id", "Text"},
		{1, "Hola gente"},
		{2, ""},
		{3, "re loco"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, stats := collect(t, NewExcelReader(nil), path)
	assert.Equal(t, []string{"Hola gente", "re loco"}, records)
	assert.Equal(t, 1, stats.SkippedRows)
}

func TestTextReader_KeepsEveryLine(t *testing.T) {
	path := writeFile(t, t.TempDir(), "corpus.txt", "uno\n\n  dos  \n")

	records, stats := collect(t, NewTextReader(nil), path)
	assert.Equal(t, []string{"uno", "", "  dos  "}, records)
	assert.Equal(t, 0, stats.SkippedRows)
}

func TestReaderFactory_Open(t *testing.T) {
	dir := t.TempDir()
	factory := NewReaderFactory(nil)
	ctx := context.Background()

	txt, err := factory.Open(ctx, writeFile(t, dir, "a.txt", "hola\n"))
	require.NoError(t, err)
	assert.Equal(t, corpus.KindPath, txt.Kind())

	jsonl, err := factory.Open(ctx, writeFile(t, dir, "a.jsonl", `{"text": "hola"}`+"\n"))
	require.NoError(t, err)
	assert.Equal(t, corpus.KindStream, jsonl.Kind())

	records, err := jsonl.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hola"}, records)

	_, err = factory.Open(ctx, filepath.Join(dir, "a.parquet"))
	assert.Error(t, err)
}

func TestReaderFactory_Read(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.csv", "text\nhola\n\nchau\n")

	result, err := NewReaderFactory(nil).Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"hola", "chau"}, result.Records)
	assert.Equal(t, "CSV", result.Format)
	assert.Equal(t, "text", result.Field)
}

func TestReaderFactory_SupportedFormats(t *testing.T) {
	factory := NewReaderFactory(nil)

	assert.Equal(t,
		[]string{".csv", ".json", ".jsonl", ".jsonnl", ".ndjson", ".text", ".txt", ".xlsx"},
		factory.SupportedFormats())
	assert.True(t, factory.IsSupported("CSV"))
	assert.True(t, factory.IsSupported(".Txt"))
	assert.False(t, factory.IsSupported(".pdf"))
}

func TestReaderConfig_MaxFileSize(t *testing.T) {
	config := DefaultReaderConfig()
	config.MaxFileSize = 4

	path := writeFile(t, t.TempDir(), "big.jsonl", `{"text": "demasiado largo"}`)

	var got error
	for _, err := range NewJSONLReader(config).Stream(context.Background(), path, nil) {
		got = err
	}
	require.Error(t, got)
	assert.Contains(t, got.Error(), "exceeds maximum")
}

func TestContext_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := writeFile(t, t.TempDir(), "a.csv", "text\nhola\n")
	var got error
	for _, err := range NewCSVReader(nil).Stream(ctx, path, nil) {
		got = err
	}
	assert.ErrorIs(t, got, context.Canceled)
}
