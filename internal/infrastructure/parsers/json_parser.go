package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
)

// JSONReader reads .json corpora. Accepted shapes: an array of strings, an
// array of objects carrying the text field, or a single such object.
type JSONReader struct {
	config *ReaderConfig
}

// NewJSONReader creates a new JSON reader
func NewJSONReader(config *ReaderConfig) *JSONReader {
	if config == nil {
		config = DefaultReaderConfig()
	}
	return &JSONReader{
		config: config,
	}
}

// Stream decodes array elements one at a time
func (p *JSONReader) Stream(ctx context.Context, path string, stats *Stats) iter.Seq2[string, error] {
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

// StreamReader yields the text records of JSON data read from r
func (p *JSONReader) StreamReader(ctx context.Context, r io.Reader, stats *Stats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		p.streamFrom(ctx, r, stats, yield)
	}
}

func (p *JSONReader) streamFrom(ctx context.Context, r io.Reader, stats *Stats, yield func(string, error) bool) {
	decoder := json.NewDecoder(r)

	// Peek at the first token to determine structure
	token, err := decoder.Token()
	if err != nil {
		yield("", fmt.Errorf("failed to read JSON: %w", err))
		return
	}

	delim, ok := token.(json.Delim)
	switch {
	case ok && delim == '[':
		for decoder.More() {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				yield("", fmt.Errorf("failed to decode JSON element: %w", err))
				return
			}

			text, ok := p.extract(raw)
			stats.row(!ok)
			if !ok {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}

		// Read the closing bracket
		if _, err := decoder.Token(); err != nil {
			yield("", fmt.Errorf("failed to read closing bracket: %w", err))
		}

	case ok && delim == '{':
		// Single object: its opening brace is already consumed, walk the
		// remaining key/value pairs
		for decoder.More() {
			keyToken, err := decoder.Token()
			if err != nil {
				yield("", fmt.Errorf("failed to read JSON key: %w", err))
				return
			}
			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				yield("", fmt.Errorf("failed to decode JSON value: %w", err))
				return
			}

			key, _ := keyToken.(string)
			if key != p.config.TextField {
				continue
			}
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				stats.row(true)
				return
			}
			text, ok := p.config.accept(value)
			stats.row(!ok)
			if ok {
				yield(text, nil)
			}
			return
		}
		stats.row(true)

	default:
		yield("", fmt.Errorf("unsupported JSON corpus: expected an array or an object"))
	}
}

// extract returns the text of one array element
func (p *JSONReader) extract(raw json.RawMessage) (string, bool) {
	var value string
	if err := json.Unmarshal(raw, &value); err == nil {
		return p.config.accept(value)
	}
	return extractField(raw, p.config)
}

// extractField pulls the configured text field out of a JSON object
func extractField(raw []byte, config *ReaderConfig) (string, bool) {
	var record map[string]json.RawMessage
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", false
	}
	field, ok := record[config.TextField]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(field, &value); err != nil {
		return "", false
	}
	return config.accept(value)
}

// Format returns the format name
func (p *JSONReader) Format() string {
	return "JSON"
}

// SupportedFormats returns the file extensions this reader supports
func (p *JSONReader) SupportedFormats() []string {
	return []string{".json"}
}
