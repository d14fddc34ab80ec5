// Package corpus wraps the three accepted corpus shapes (an in-memory list,
// a newline-delimited file, a one-shot stream) behind one iteration contract.
package corpus

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync/atomic"

	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// Kind identifies which representation a Source wraps
type Kind int

const (
	KindList Kind = iota
	KindPath
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindPath:
		return "path"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Source is a corpus handle. Its kind is fixed at construction.
//
// List and path sources can be iterated any number of times; a path source
// re-opens the file on every iteration. A stream source is single use: the
// first iteration claims it and every later iteration yields nothing, even
// when the first one stopped early.
type Source struct {
	kind    Kind
	records []string
	path    string
	stream  iter.Seq2[string, error]
	claimed atomic.Bool
}

// FromList wraps an in-memory ordered sequence of records
func FromList(records []string) *Source {
	if records == nil {
		records = []string{}
	}
	return &Source{kind: KindList, records: records}
}

// FromPath wraps a newline-delimited text file
func FromPath(path string) *Source {
	return &Source{kind: KindPath, path: path}
}

// FromStream wraps an already lazy sequence
func FromStream(seq iter.Seq2[string, error]) *Source {
	return &Source{kind: KindStream, stream: seq}
}

// FromLines adapts a pull-style producer. next returns ok=false when exhausted.
func FromLines(next func() (string, bool, error)) *Source {
	return FromStream(func(yield func(string, error) bool) {
		for {
			line, ok, err := next()
			if err != nil {
				yield("", err)
				return
			}
			if !ok || !yield(line, nil) {
				return
			}
		}
	})
}

// New builds a Source from a value received at a dynamic boundary (decoded
// JSON, CLI flags, queue payloads). Unsupported shapes fail here, before any
// processing starts.
func New(v any) (*Source, error) {
	switch data := v.(type) {
	case *Source:
		if data == nil {
			return nil, apperrors.InvalidCorpus(v)
		}
		return data, nil
	case []string:
		return FromList(data), nil
	case []any:
		records := make([]string, len(data))
		for i, item := range data {
			s, ok := item.(string)
			if !ok {
				return nil, apperrors.InvalidCorpus(item).WithDetails("index", i)
			}
			records[i] = s
		}
		return FromList(records), nil
	case string:
		return FromPath(data), nil
	case iter.Seq2[string, error]:
		return FromStream(data), nil
	case func(func(string, error) bool):
		return FromStream(data), nil
	case iter.Seq[string]:
		return FromStream(func(yield func(string, error) bool) {
			for s := range data {
				if !yield(s, nil) {
					return
				}
			}
		}), nil
	default:
		return nil, apperrors.InvalidCorpus(v)
	}
}

// Kind returns the wrapped representation
func (s *Source) Kind() Kind {
	return s.kind
}

// Materialized reports whether every record is already in memory
func (s *Source) Materialized() bool {
	return s.kind == KindList
}

// Records returns the in-memory records of a list source, nil otherwise
func (s *Source) Records() []string {
	if s.kind != KindList {
		return nil
	}
	return s.records
}

// Path returns the file path of a path source
func (s *Source) Path() string {
	return s.path
}

// All yields one record per step. An error is yielded at most once and ends
// the iteration.
func (s *Source) All() iter.Seq2[string, error] {
	switch s.kind {
	case KindList:
		return s.listRecords
	case KindPath:
		return s.fileRecords
	default:
		return s.streamRecords
	}
}

func (s *Source) listRecords(yield func(string, error) bool) {
	for _, record := range s.records {
		if !yield(record, nil) {
			return
		}
	}
}

func (s *Source) fileRecords(yield func(string, error) bool) {
	file, err := os.Open(s.path)
	if err != nil {
		yield("", fmt.Errorf("failed to open corpus file: %w", err))
		return
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if !yield(line, nil) {
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			yield("", fmt.Errorf("error reading corpus file: %w", err))
			return
		}
	}
}

func (s *Source) streamRecords(yield func(string, error) bool) {
	if s.stream == nil || !s.claimed.CompareAndSwap(false, true) {
		return
	}
	for record, err := range s.stream {
		if !yield(record, err) || err != nil {
			return
		}
	}
}

// Collect drains the source into memory
func (s *Source) Collect(ctx context.Context) ([]string, error) {
	if s.kind == KindList {
		out := make([]string, len(s.records))
		copy(out, s.records)
		return out, nil
	}

	var out []string
	for record, err := range s.All() {
		if err != nil {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, record)
	}
	return out, nil
}
