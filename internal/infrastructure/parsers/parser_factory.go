package parsers

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"sort"
	"strings"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
)

// ReaderFactory selects the corpus reader based on file extension
type ReaderFactory struct {
	config  *ReaderConfig
	readers map[string]CorpusReader
}

// NewReaderFactory creates a new factory with all built-in readers
func NewReaderFactory(config *ReaderConfig) *ReaderFactory {
	if config == nil {
		config = DefaultReaderConfig()
	}

	factory := &ReaderFactory{
		config:  config,
		readers: make(map[string]CorpusReader),
	}

	// Register built-in readers
	factory.RegisterReader(NewTextReader(config))
	factory.RegisterReader(NewCSVReader(config))
	factory.RegisterReader(NewExcelReader(config))
	factory.RegisterReader(NewJSONReader(config))
	factory.RegisterReader(NewJSONLReader(config))

	return factory
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// RegisterReader registers a custom reader
func (f *ReaderFactory) RegisterReader(reader CorpusReader) {
	for _, ext := range reader.SupportedFormats() {
		f.readers[normalizeExt(ext)] = reader
	}
}

// GetReader returns the reader for a file extension
func (f *ReaderFactory) GetReader(fileExt string) (CorpusReader, error) {
	reader, exists := f.readers[normalizeExt(fileExt)]
	if !exists {
		return nil, fmt.Errorf("no corpus reader found for extension: %s", fileExt)
	}
	return reader, nil
}

// GetReaderForFile returns the reader based on file path
func (f *ReaderFactory) GetReaderForFile(filePath string) (CorpusReader, error) {
	return f.GetReader(filepath.Ext(filePath))
}

// Open wraps a corpus file as a Source. Plain text files become path
// sources, re-read on every iteration; structured files become
// single-use streams.
func (f *ReaderFactory) Open(ctx context.Context, filePath string) (*corpus.Source, error) {
	reader, err := f.GetReaderForFile(filePath)
	if err != nil {
		return nil, err
	}
	if _, ok := reader.(*TextReader); ok {
		return corpus.FromPath(filePath), nil
	}
	return corpus.FromStream(reader.Stream(ctx, filePath, nil)), nil
}

// Stream yields the records of a corpus file
func (f *ReaderFactory) Stream(ctx context.Context, filePath string, stats *Stats) (iter.Seq2[string, error], error) {
	reader, err := f.GetReaderForFile(filePath)
	if err != nil {
		return nil, err
	}
	return reader.Stream(ctx, filePath, stats), nil
}

// Read materializes a corpus file
func (f *ReaderFactory) Read(ctx context.Context, filePath string) (*ReadResult, error) {
	reader, err := f.GetReaderForFile(filePath)
	if err != nil {
		return nil, err
	}

	var stats Stats
	records := []string{}
	for text, err := range reader.Stream(ctx, filePath, &stats) {
		if err != nil {
			return nil, err
		}
		records = append(records, text)
	}

	return &ReadResult{
		Records:     records,
		TotalRows:   stats.TotalRows,
		SkippedRows: stats.SkippedRows,
		Field:       f.config.TextField,
		Format:      reader.Format(),
	}, nil
}

// SupportedFormats returns all supported file extensions, sorted
func (f *ReaderFactory) SupportedFormats() []string {
	formats := make([]string, 0, len(f.readers))
	for ext := range f.readers {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

// IsSupported checks if a file extension is supported
func (f *ReaderFactory) IsSupported(fileExt string) bool {
	_, exists := f.readers[normalizeExt(fileExt)]
	return exists
}
