package pipeline

import (
	"context"
	"fmt"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// InlineSource is recorded as the source of documents that were not read
// from a file
const InlineSource = "inline"

// Service opens pipelines by configuration alias or path, sharing the same
// dependencies between them
type Service struct {
	resolve func(string) string
	opts    []Option
}

// NewService creates a service. resolve maps a configuration alias to a
// document path; nil treats every reference as a path.
func NewService(resolve func(string) string, opts ...Option) *Service {
	if resolve == nil {
		resolve = func(ref string) string { return ref }
	}
	return &Service{resolve: resolve, opts: opts}
}

// Open loads the document behind ref and builds a pipeline for it
func (s *Service) Open(ref string) (*Pipeline, error) {
	doc, err := LoadDocument(s.resolve(ref))
	if err != nil {
		return nil, err
	}
	return New(doc, s.opts...)
}

// OpenAlias is Open restricted to configuration aliases. References the
// resolver does not map to a document are rejected without touching the
// filesystem.
func (s *Service) OpenAlias(alias string) (*Pipeline, error) {
	path := s.resolve(alias)
	if path == alias {
		return nil, apperrors.ConfigError(nil, fmt.Sprintf("unknown configuration alias %q", alias))
	}
	return s.Open(alias)
}

// OpenDocument builds a pipeline for a document given inline
func (s *Service) OpenDocument(data []byte) (*Pipeline, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return s.Build(doc)
}

// Build creates a pipeline for an already parsed inline document
func (s *Service) Build(doc *Document) (*Pipeline, error) {
	doc.Source = InlineSource
	return New(doc, s.opts...)
}

// Run runs the single process alias of p, or the whole sequence when alias
// is empty
func Run(ctx context.Context, p *Pipeline, alias string, src *corpus.Source, persist bool) (*Output, error) {
	if alias == "" {
		return p.RunSequentially(ctx, src, persist)
	}
	return p.RunProcess(ctx, alias, src, persist)
}
