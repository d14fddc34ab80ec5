package parsers

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"
)

// Stats counts the rows a reader saw while streaming. Rows that carry no
// usable text (empty, malformed, field missing) are skipped, not failed.
type Stats struct {
	TotalRows   int
	SkippedRows int
}

// ReadResult is a fully materialized corpus file
type ReadResult struct {
	Records     []string
	TotalRows   int
	SkippedRows int
	Field       string
	Format      string
}

// CorpusReader is the interface all corpus file readers implement
type CorpusReader interface {
	// Stream yields the text field of every row in the file at path, one
	// row per pull. stats may be nil.
	Stream(ctx context.Context, path string, stats *Stats) iter.Seq2[string, error]

	// Format returns a short format name (e.g. "CSV")
	Format() string

	// SupportedFormats returns the file extensions this reader supports
	SupportedFormats() []string
}

// ReaderConfig holds configuration for all readers
type ReaderConfig struct {
	// TextField names the column or JSON key holding the text. An empty
	// value selects the first column of tabular files.
	TextField string

	// SkipEmptyRows drops rows whose text is empty after trimming
	SkipEmptyRows bool

	// TrimWhitespace trims headers and extracted text
	TrimWhitespace bool

	// MaxFileSize is the maximum file size in bytes (0 = unlimited)
	MaxFileSize int64
}

// DefaultReaderConfig returns sensible defaults
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		TextField:      "text",
		SkipEmptyRows:  true,
		TrimWhitespace: true,
		MaxFileSize:    500 * 1024 * 1024, // 500 MB
	}
}

// openChecked opens path enforcing the size limit
func openChecked(path string, maxSize int64) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file: %w", err)
	}

	if maxSize > 0 {
		stat, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if stat.Size() > maxSize {
			file.Close()
			return nil, fmt.Errorf("file size %d exceeds maximum %d", stat.Size(), maxSize)
		}
	}

	return file, nil
}

// columnIndex finds the text column in a header row
func columnIndex(header []string, field string) (int, error) {
	if len(header) == 0 {
		return -1, fmt.Errorf("file has no header row")
	}
	if field == "" {
		return 0, nil
	}
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), field) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found (columns: %v)", field, header)
}

// accept applies trimming and the empty-row rule. ok=false means skip.
func (c *ReaderConfig) accept(text string) (string, bool) {
	if c.TrimWhitespace {
		text = strings.TrimSpace(text)
	}
	if c.SkipEmptyRows && strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (s *Stats) row(skipped bool) {
	if s == nil {
		return
	}
	s.TotalRows++
	if skipped {
		s.SkippedRows++
	}
}
