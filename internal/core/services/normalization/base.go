package normalization

import (
	"context"
	"errors"
)

// DefaultCorpusFileName is the file normalized corpora are written to
const DefaultCorpusFileName = "normcorpus.txt"

// ErrNoTarget is returned by a Sink when no output directory is configured.
// The engine treats it as "persistence not wanted" and stays silent.
var ErrNoTarget = errors.New("no persistence target configured")

// Target says where a process writes its output. Dir may be empty, in
// which case nothing is written.
type Target struct {
	Alias    string
	Dir      string
	FileName string
}

// RecordWriter receives normalized records one at a time
type RecordWriter interface {
	Write(record string) error
	Close() error
}

// Sink persists normalized corpora
type Sink interface {
	// WriteAll writes every record, newline separated, and returns the path written
	WriteAll(ctx context.Context, target Target, records []string) (string, error)

	// OpenWriter opens a streaming writer; each Write is flushed
	OpenWriter(ctx context.Context, target Target) (RecordWriter, string, error)
}

// Cache memoizes normalized records. Misses report ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
