package pipeline

import (
	"context"
	"sort"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/featurization"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
)

// Kind tells normalizers and featurizers apart
type Kind int

const (
	KindNormalizer Kind = iota
	KindFeaturizer
)

func (k Kind) String() string {
	switch k {
	case KindNormalizer:
		return "normalizer"
	case KindFeaturizer:
		return "featurizer"
	}
	return "unknown"
}

// Process is the capability set every pipeline process shares
type Process interface {
	Alias() string
	Kind() Kind
	DefaultConfig() any
}

// Normalizer transforms a corpus into another corpus
type Normalizer interface {
	Alias() string
	Kind() Kind
	DefaultConfig() any
	Normalize(ctx context.Context, src *corpus.Source, persist bool) (*normalization.Result, error)
}

// Featurizer learns from a corpus and turns records into vectors
type Featurizer interface {
	Alias() string
	Kind() Kind
	DefaultConfig() any
	Train(ctx context.Context, trainset *corpus.Source, persist bool) error
	Process(ctx context.Context, records []string) (featurization.Features, error)
	Persist(ctx context.Context) ([]string, error)
}

type normalizerProcess struct {
	*normalization.RegexNormalizer
}

func (normalizerProcess) Kind() Kind { return KindNormalizer }

func (normalizerProcess) DefaultConfig() any { return normalization.DefaultConfig() }

type countVecProcess struct {
	*featurization.CountVecFeaturizer
}

func (countVecProcess) Kind() Kind { return KindFeaturizer }

type embeddingProcess struct {
	*featurization.EmbeddingFeaturizer
}

func (embeddingProcess) Kind() Kind { return KindFeaturizer }

// factory builds the process declared by section
type factory func(p *Pipeline, section Section) (Process, error)

// registry maps every known alias to its factory
var registry = map[string]factory{
	normalization.DefaultAlias:  newNormalizerProcess,
	featurization.CountVecAlias: newCountVecProcess,
	featurization.Word2VecAlias: newEmbeddingProcess,
}

// Registered returns every alias a document may declare
func Registered() []string {
	aliases := make([]string, 0, len(registry))
	for alias := range registry {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func newNormalizerProcess(p *Pipeline, section Section) (Process, error) {
	cfg := normalization.DefaultConfig()
	if err := section.Decode(&cfg); err != nil {
		return nil, err
	}

	opts := []normalization.NormalizerOption{normalization.WithNormalizerLogger(p.logger)}
	if p.sink != nil {
		opts = append(opts, normalization.WithPersistence(p.sink))
	}
	if p.cache != nil {
		opts = append(opts, normalization.WithEngineOptions(normalization.WithCache(p.cache)))
	}
	return normalizerProcess{normalization.NewRegexNormalizer(cfg, section.Alias, opts...)}, nil
}

func newCountVecProcess(p *Pipeline, section Section) (Process, error) {
	cfg := featurization.DefaultCountVecConfig()
	if err := section.Decode(&cfg); err != nil {
		return nil, err
	}

	opts := []featurization.CountVecOption{featurization.WithCountVecLogger(p.logger)}
	if p.artifacts != nil {
		opts = append(opts, featurization.WithCountVecStore(p.artifacts))
	}
	return countVecProcess{featurization.NewCountVecFeaturizer(cfg, section.Alias, opts...)}, nil
}

func newEmbeddingProcess(p *Pipeline, section Section) (Process, error) {
	cfg := featurization.DefaultEmbeddingConfig()
	if err := section.Decode(&cfg); err != nil {
		return nil, err
	}

	opts := []featurization.EmbeddingOption{featurization.WithEmbeddingLogger(p.logger)}
	if p.artifacts != nil {
		opts = append(opts, featurization.WithEmbeddingStore(p.artifacts))
	}
	if p.trainer != nil {
		opts = append(opts, featurization.WithTrainer(p.trainer))
	}
	return embeddingProcess{featurization.NewEmbeddingFeaturizer(cfg, section.Alias, opts...)}, nil
}
