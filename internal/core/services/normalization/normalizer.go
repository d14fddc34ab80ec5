package normalization

import (
	"context"
	"log/slog"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
)

// DefaultAlias is the pipeline alias of the regex normalizer
const DefaultAlias = "regex_norm"

// Config is the regex normalizer section of a pipeline document
type Config struct {
	Active               bool   `yaml:"active" json:"active"`
	PathToSaveNormCorpus string `yaml:"path_to_save_normcorpus" json:"path_to_save_normcorpus"`
	Handlers             Steps  `yaml:"handlers" json:"handlers"`
}

func ptr(s string) *string {
	return &s
}

// DefaultConfig returns every catalog rule active, in the order that gives
// the expected results on social-media text: laughter and shorthands first,
// entity replacement before case folding, whitespace last.
func DefaultConfig() Config {
	return Config{
		Active: true,
		Handlers: Steps{
			{Name: RuleLaughter, Active: true},
			{Name: RuleRe, Active: true, Replacement: ptr("muy")},
			{Name: RuleQ, Active: true},
			{Name: RuleIsolatedConsonant, Active: true, Replacement: ptr("")},
			{Name: RuleSingleWord, Active: true, Replacement: ptr(" ")},
			{Name: RuleDigit, Active: true, Replacement: ptr("")},
			{Name: RuleEmail, Active: true, Replacement: ptr("<<EMAIL>>")},
			{Name: RuleURL, Active: true, Replacement: ptr("<<URL>>")},
			{Name: RuleMention, Active: true, Replacement: ptr("<<MENTION>>")},
			{Name: RuleDuplicatedLetter, Active: true, Replacement: ptr(`\1`)},
			{Name: RuleLowercaseDiacritic, Active: true},
			{Name: RulePunctuation, Active: true, Replacement: ptr("")},
			{Name: RuleWhitespaces, Active: true, Replacement: ptr(" ")},
		},
	}
}

// RegexNormalizer is the regex_norm pipeline process. It can also be used
// on its own, outside a pipeline.
type RegexNormalizer struct {
	alias   string
	config  Config
	custom  []ChainEntry
	options []EngineOption
	sink    Sink
	logger  *slog.Logger
}

// NormalizerOption configures a RegexNormalizer
type NormalizerOption func(*RegexNormalizer)

// WithPersistence writes normalized corpora through sink
func WithPersistence(sink Sink) NormalizerOption {
	return func(n *RegexNormalizer) {
		n.sink = sink
	}
}

// WithEngineOptions passes options through to every engine the normalizer builds
func WithEngineOptions(opts ...EngineOption) NormalizerOption {
	return func(n *RegexNormalizer) {
		n.options = append(n.options, opts...)
	}
}

// WithNormalizerLogger sets the logger
func WithNormalizerLogger(logger *slog.Logger) NormalizerOption {
	return func(n *RegexNormalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewRegexNormalizer creates a normalizer. An empty alias means DefaultAlias.
func NewRegexNormalizer(cfg Config, alias string, opts ...NormalizerOption) *RegexNormalizer {
	if alias == "" {
		alias = DefaultAlias
	}
	n := &RegexNormalizer{
		alias:  alias,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Alias returns the pipeline alias
func (n *RegexNormalizer) Alias() string {
	return n.alias
}

// Config returns the configuration the normalizer was built with
func (n *RegexNormalizer) Config() Config {
	return n.config
}

// AddRule appends a custom rule. Custom rules run after the configured ones,
// in the order they were added.
func (n *RegexNormalizer) AddRule(name string, fn RuleFunc, replacement string) {
	n.custom = append(n.custom, ChainEntry{Name: name, Fn: fn, Replacement: replacement})
}

// Chain compiles the configured handlers plus the custom rules. A fresh
// chain is built on every call, so repeated runs never stack rules.
func (n *RegexNormalizer) Chain() *Chain {
	chain := CompileWithLogger(n.config.Handlers, n.logger)
	for _, entry := range n.custom {
		chain.Append(entry.Name, entry.Fn, entry.Replacement)
	}
	return chain
}

// Engine builds the engine a Normalize call runs on
func (n *RegexNormalizer) Engine() *Engine {
	opts := make([]EngineOption, 0, len(n.options)+2)
	opts = append(opts, WithLogger(n.logger))
	opts = append(opts, n.options...)
	if n.sink != nil {
		opts = append(opts, WithSink(n.sink, n.alias, n.config.PathToSaveNormCorpus))
	}
	return NewEngine(n.Chain(), opts...)
}

// Normalize normalizes src. A list comes back as a list, anything else as
// a lazy stream.
func (n *RegexNormalizer) Normalize(ctx context.Context, src *corpus.Source, persist bool) (*Result, error) {
	return n.Engine().Normalize(ctx, src, persist)
}

// NormalizeText normalizes a single string
func (n *RegexNormalizer) NormalizeText(ctx context.Context, text string) (string, error) {
	return n.Engine().NormalizeText(ctx, text)
}
