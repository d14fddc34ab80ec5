package parsers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
)

// JSONLReader reads newline-delimited JSON corpora, one object per line
type JSONLReader struct {
	config *ReaderConfig
}

// NewJSONLReader creates a new JSONL reader
func NewJSONLReader(config *ReaderConfig) *JSONLReader {
	if config == nil {
		config = DefaultReaderConfig()
	}
	return &JSONLReader{
		config: config,
	}
}

// Stream yields the text field line by line
func (p *JSONLReader) Stream(ctx context.Context, path string, stats *Stats) iter.Seq2[string, error] {
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

// StreamReader yields the text records of JSONL data read from r
func (p *JSONLReader) StreamReader(ctx context.Context, r io.Reader, stats *Stats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		p.streamFrom(ctx, r, stats, yield)
	}
}

func (p *JSONLReader) streamFrom(ctx context.Context, r io.Reader, stats *Stats, yield func(string, error) bool) {
	scanner := bufio.NewScanner(r)
	// Set a larger buffer for potentially large JSON lines (max 1MB per line)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			stats.row(true)
			continue
		}

		// Malformed lines and lines without the field are skipped
		text, ok := extractField(line, p.config)
		stats.row(!ok)
		if !ok {
			continue
		}
		if !yield(text, nil) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		yield("", fmt.Errorf("error reading JSONL stream: %w", err))
	}
}

// Format returns the format name
func (p *JSONLReader) Format() string {
	return "JSONL"
}

// SupportedFormats returns the file extensions this reader supports
func (p *JSONLReader) SupportedFormats() []string {
	return []string{".jsonl", ".ndjson", ".jsonnl"}
}
