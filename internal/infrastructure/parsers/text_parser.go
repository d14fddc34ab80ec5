package parsers

import (
	"context"
	"iter"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
)

// TextReader reads plain newline-delimited corpora. Every line is a
// record; no trimming or filtering is applied, so the output lines up 1:1
// with the file.
type TextReader struct {
	config *ReaderConfig
}

// NewTextReader creates a new plain-text reader
func NewTextReader(config *ReaderConfig) *TextReader {
	if config == nil {
		config = DefaultReaderConfig()
	}
	return &TextReader{config: config}
}

// Stream yields the lines of the file at path
func (p *TextReader) Stream(ctx context.Context, path string, stats *Stats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		file, err := openChecked(path, p.config.MaxFileSize)
		if err != nil {
			yield("", err)
			return
		}
		file.Close()

		for line, err := range corpus.FromPath(path).All() {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield("", err)
				return
			}
			stats.row(false)
			if !yield(line, nil) {
				return
			}
		}
	}
}

// Format returns the format name
func (p *TextReader) Format() string {
	return "TXT"
}

// SupportedFormats returns the file extensions this reader supports
func (p *TextReader) SupportedFormats() []string {
	return []string{".txt", ".text"}
}
