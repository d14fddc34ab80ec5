package parsers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
)

// CSVReader reads the text column of CSV files
type CSVReader struct {
	config *ReaderConfig
}

// NewCSVReader creates a new CSV reader
func NewCSVReader(config *ReaderConfig) *CSVReader {
	if config == nil {
		config = DefaultReaderConfig()
	}
	return &CSVReader{
		config: config,
	}
}

// Stream yields the text column row by row
func (p *CSVReader) Stream(ctx context.Context, path string, stats *Stats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		file, err := openChecked(path, p.config.MaxFileSize)
		if err != nil {
			yield("", err)
			return
		}
		defer file.Close()

		p.streamFrom(ctx, file, stats, yield)
	}
}

// StreamReader yields the text column of CSV data read from r
func (p *CSVReader) StreamReader(ctx context.Context, r io.Reader, stats *Stats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		p.streamFrom(ctx, r, stats, yield)
	}
}

func (p *CSVReader) streamFrom(ctx context.Context, r io.Reader, stats *Stats, yield func(string, error) bool) {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = p.config.TrimWhitespace
	csvReader.FieldsPerRecord = -1 // Allow variable number of fields per record
	csvReader.ReuseRecord = true

	header, err := csvReader.Read()
	if err != nil {
		yield("", fmt.Errorf("failed to read CSV header: %w", err))
		return
	}
	idx, err := columnIndex(header, p.config.TextField)
	if err != nil {
		yield("", err)
		return
	}

	for {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}

		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Skip malformed rows but continue reading
			stats.row(true)
			continue
		}
		if idx >= len(row) {
			stats.row(true)
			continue
		}

		text, ok := p.config.accept(row[idx])
		stats.row(!ok)
		if !ok {
			continue
		}
		if !yield(text, nil) {
			return
		}
	}
}

// Format returns the format name
func (p *CSVReader) Format() string {
	return "CSV"
}

// SupportedFormats returns the file extensions this reader supports
func (p *CSVReader) SupportedFormats() []string {
	return []string{".csv"}
}
