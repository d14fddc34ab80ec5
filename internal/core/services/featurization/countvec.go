package featurization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// CountVecAlias is the pipeline alias of the count featurizer
const CountVecAlias = "countvec"

// File names used when persisting
const (
	CountVecModelFile = "countvec_model.json"
	VocabularyFile    = "vocab.json"
)

// CountVecConfig is the countvec section of a pipeline document
type CountVecConfig struct {
	Active                    bool   `yaml:"active" json:"active"`
	MaxFeatures               int    `yaml:"max_features" json:"max_features"`
	MinNgram                  int    `yaml:"min_ngram" json:"min_ngram"`
	MaxNgram                  int    `yaml:"max_ngram" json:"max_ngram"`
	PathToGetTrainedModel     string `yaml:"path_to_get_trained_model" json:"path_to_get_trained_model"`
	PathToGetStoredVocabulary string `yaml:"path_to_get_stored_vocabulary" json:"path_to_get_stored_vocabulary"`
	UpdateStoredVocabulary    bool   `yaml:"update_stored_vocabulary" json:"update_stored_vocabulary"`
	UseOwnVocabularyCreator   bool   `yaml:"use_own_vocabulary_creator" json:"use_own_vocabulary_creator"`
	UnkToken                  string `yaml:"unk_token" json:"unk_token"`
	PathToSaveModel           string `yaml:"path_to_save_model" json:"path_to_save_model"`
	PathToSaveVocabulary      string `yaml:"path_to_save_vocabulary" json:"path_to_save_vocabulary"`
}

// DefaultCountVecConfig returns unigram counting with no feature limit
func DefaultCountVecConfig() CountVecConfig {
	return CountVecConfig{
		Active:                  true,
		MinNgram:                1,
		MaxNgram:                1,
		UseOwnVocabularyCreator: true,
		UnkToken:                DefaultUnkToken,
	}
}

// countVecModel is the persisted form of a trained featurizer
type countVecModel struct {
	MinNgram    int            `json:"min_ngram"`
	MaxNgram    int            `json:"max_ngram"`
	MaxFeatures int            `json:"max_features"`
	UnkToken    string         `json:"unk_token"`
	Vocabulary  map[string]int `json:"vocabulary"`
}

// CountVecFeaturizer builds bag-of-n-grams count vectors. Tokens are not
// lowercased or stripped; that is the normalizer's job.
type CountVecFeaturizer struct {
	alias  string
	config CountVecConfig
	store  ArtifactStore
	logger *slog.Logger

	model  *countVecModel
	stored *Vocabulary
	seen   map[string]struct{}
}

// CountVecOption configures a CountVecFeaturizer
type CountVecOption func(*CountVecFeaturizer)

// WithCountVecStore persists models and vocabularies through store
func WithCountVecStore(store ArtifactStore) CountVecOption {
	return func(f *CountVecFeaturizer) {
		f.store = store
	}
}

// WithCountVecLogger sets the logger
func WithCountVecLogger(logger *slog.Logger) CountVecOption {
	return func(f *CountVecFeaturizer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewCountVecFeaturizer creates an untrained featurizer. An empty alias
// means CountVecAlias.
func NewCountVecFeaturizer(cfg CountVecConfig, alias string, opts ...CountVecOption) *CountVecFeaturizer {
	if alias == "" {
		alias = CountVecAlias
	}
	if cfg.MinNgram < 1 {
		cfg.MinNgram = 1
	}
	if cfg.MaxNgram < cfg.MinNgram {
		cfg.MaxNgram = cfg.MinNgram
	}
	f := &CountVecFeaturizer{
		alias:  alias,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Alias returns the pipeline alias
func (f *CountVecFeaturizer) Alias() string {
	return f.alias
}

// Config returns the configuration the featurizer was built with
func (f *CountVecFeaturizer) Config() CountVecConfig {
	return f.config
}

// Trained reports whether a model is available
func (f *CountVecFeaturizer) Trained() bool {
	return f.model != nil
}

// Vocabulary returns the feature to column mapping, nil when untrained
func (f *CountVecFeaturizer) Vocabulary() map[string]int {
	if f.model == nil {
		return nil
	}
	out := make(map[string]int, len(f.model.Vocabulary))
	for k, v := range f.model.Vocabulary {
		out[k] = v
	}
	return out
}

func (f *CountVecFeaturizer) analyze(text string) ([]string, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	return NGrams(tokens, f.config.MinNgram, f.config.MaxNgram), nil
}

// Train fits the featurizer on trainset. Every call retrains from scratch.
// A stored vocabulary, when configured and readable, fixes the columns;
// otherwise they are learned from the corpus.
func (f *CountVecFeaturizer) Train(ctx context.Context, trainset *corpus.Source, persist bool) error {
	if trainset == nil {
		return apperrors.InvalidCorpus(nil)
	}

	f.logger.Info("countvec training has started", slog.String("alias", f.alias))

	f.stored = f.loadStoredVocabulary(ctx)

	counts := make(map[string]int)
	f.seen = make(map[string]struct{})
	docs := 0
	for text, err := range trainset.All() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		features, err := f.analyze(text)
		if err != nil {
			return apperrors.TransformError(err, "tokenize", docs)
		}
		for _, feature := range features {
			counts[feature]++
			f.seen[feature] = struct{}{}
		}
		docs++
	}

	var vocabulary map[string]int
	switch {
	case f.stored != nil:
		vocabulary = f.stored.TokenIndex()
	case f.config.UseOwnVocabularyCreator:
		vocabulary = f.learnVocabulary(counts)
	default:
		vocabulary = f.vocabularyFromCreator(counts)
	}

	f.model = &countVecModel{
		MinNgram:    f.config.MinNgram,
		MaxNgram:    f.config.MaxNgram,
		MaxFeatures: f.config.MaxFeatures,
		UnkToken:    f.config.UnkToken,
		Vocabulary:  vocabulary,
	}

	f.logger.Info("countvec training finished",
		slog.String("alias", f.alias),
		slog.Int("documents", docs),
		slog.Int("features", len(vocabulary)),
	)

	if persist {
		if _, err := f.Persist(ctx); err != nil {
			return err
		}
	}
	return nil
}

// learnVocabulary keeps the most frequent features (all of them without a
// limit) and numbers them in lexical order. The UNK token is always kept.
func (f *CountVecFeaturizer) learnVocabulary(counts map[string]int) map[string]int {
	features := make([]string, 0, len(counts))
	for feature := range counts {
		features = append(features, feature)
	}

	if f.config.MaxFeatures > 0 && len(features) > f.config.MaxFeatures {
		sort.Slice(features, func(i, j int) bool {
			if counts[features[i]] != counts[features[j]] {
				return counts[features[i]] > counts[features[j]]
			}
			return features[i] < features[j]
		})
		features = features[:f.config.MaxFeatures]
	}

	if f.config.UnkToken != "" && !slices.Contains(features, f.config.UnkToken) {
		features = append(features, f.config.UnkToken)
	}

	sort.Strings(features)
	vocabulary := make(map[string]int, len(features))
	for i, feature := range features {
		vocabulary[feature] = i
	}
	return vocabulary
}

// vocabularyFromCreator numbers features through a Vocabulary: UNK first,
// then the learned features in lexical order
func (f *CountVecFeaturizer) vocabularyFromCreator(counts map[string]int) map[string]int {
	learned := f.learnVocabulary(counts)

	ordered := make([]string, 0, len(learned))
	for feature := range learned {
		if feature != f.config.UnkToken {
			ordered = append(ordered, feature)
		}
	}
	sort.Strings(ordered)

	opts := DefaultVocabularyOptions()
	opts.UnkToken = f.config.UnkToken
	opts.AddUnk = f.config.UnkToken != ""
	vocab := NewVocabulary(opts)
	for _, feature := range ordered {
		vocab.insert(feature)
	}
	return vocab.TokenIndex()
}

func (f *CountVecFeaturizer) loadStoredVocabulary(ctx context.Context) *Vocabulary {
	path := f.config.PathToGetStoredVocabulary
	if path == "" {
		return nil
	}

	opts := VocabularyOptions{UnkToken: f.config.UnkToken, AddUnk: f.config.UnkToken != ""}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if f.store == nil {
			f.logger.Warn("cannot load stored vocabulary without an artifact store", slog.String("path", path))
			return nil
		}
		var index map[string]int
		if err := f.store.LoadJSON(ctx, path, &index); err != nil {
			f.logger.Warn("could not load stored vocabulary",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		return FromIndex(index, opts)
	case ".txt":
		lines, err := corpus.FromPath(path).Collect(ctx)
		if err != nil {
			f.logger.Warn("could not load stored vocabulary",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		vocab := FromIndex(nil, VocabularyOptions{})
		for _, line := range lines {
			if line != "" {
				vocab.insert(line)
			}
		}
		return FromIndex(vocab.TokenIndex(), opts)
	}

	f.logger.Warn("no countvec vocabulary to load, expected a .txt or .json file",
		slog.String("path", path))
	return nil
}

// Load restores a model saved by Persist
func (f *CountVecFeaturizer) Load(ctx context.Context, path string) error {
	if f.store == nil {
		return apperrors.ConfigError(errNoStore, "cannot load countvec model")
	}
	var model countVecModel
	if err := f.store.LoadJSON(ctx, path, &model); err != nil {
		return err
	}
	if len(model.Vocabulary) == 0 {
		return apperrors.ConfigError(nil, fmt.Sprintf("model at %s has an empty vocabulary", path))
	}
	f.model = &model
	f.config.MinNgram = model.MinNgram
	f.config.MaxNgram = model.MaxNgram

	f.logger.Info("countvec model loaded", slog.String("path", path))
	return nil
}

// Process turns records into count vectors. N-grams outside the vocabulary
// are counted under the UNK column when the vocabulary has one.
func (f *CountVecFeaturizer) Process(ctx context.Context, records []string) (Features, error) {
	if f.model == nil && f.config.PathToGetTrainedModel != "" {
		if err := f.Load(ctx, f.config.PathToGetTrainedModel); err != nil {
			f.logger.Warn("could not load trained countvec model",
				slog.String("path", f.config.PathToGetTrainedModel),
				slog.String("error", err.Error()))
		}
	}
	if f.model == nil {
		return nil, apperrors.NoTrainedModel(f.alias)
	}

	unk, hasUnk := f.model.Vocabulary[f.model.UnkToken]
	if f.model.UnkToken == "" {
		hasUnk = false
	}

	matrix := &SparseMatrix{
		Features: columns(f.model.Vocabulary),
		Vectors:  make([]SparseVector, 0, len(records)),
	}
	for i, text := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		features, err := f.analyze(text)
		if err != nil {
			return nil, apperrors.TransformError(err, "tokenize", i)
		}

		row := make(map[int]int)
		for _, feature := range features {
			if idx, ok := f.model.Vocabulary[feature]; ok {
				row[idx]++
			} else if hasUnk {
				row[unk]++
			}
		}
		matrix.Vectors = append(matrix.Vectors, sparse(row))
	}
	return matrix, nil
}

func columns(vocabulary map[string]int) int {
	n := 0
	for _, idx := range vocabulary {
		if idx+1 > n {
			n = idx + 1
		}
	}
	return n
}

func sparse(row map[int]int) SparseVector {
	vec := SparseVector{
		Indices: make([]int, 0, len(row)),
		Values:  make([]int, 0, len(row)),
	}
	for idx := range row {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)
	for _, idx := range vec.Indices {
		vec.Values = append(vec.Values, row[idx])
	}
	return vec
}

// Persist writes the model and the vocabulary. With
// update_stored_vocabulary the stored vocabulary is extended with the new
// features of the last training corpus instead.
func (f *CountVecFeaturizer) Persist(ctx context.Context) ([]string, error) {
	if f.model == nil {
		return nil, apperrors.NoTrainedModel(f.alias)
	}
	if f.store == nil {
		f.logger.Warn("persistence requested but no artifact store configured", slog.String("alias", f.alias))
		return nil, nil
	}

	var written []string
	modelPath, err := f.store.SaveModel(ctx, Target{
		Alias:    f.alias,
		Dir:      f.config.PathToSaveModel,
		FileName: CountVecModelFile,
	}, f.model)
	if err != nil {
		return nil, apperrors.PersistenceError(err, f.config.PathToSaveModel)
	}
	written = append(written, modelPath)

	vocabulary := f.model.Vocabulary
	if f.config.UpdateStoredVocabulary {
		if f.stored == nil {
			f.logger.Warn("could not update stored vocabulary, none was loaded",
				slog.String("alias", f.alias),
				slog.String("path", f.config.PathToGetStoredVocabulary))
			return written, nil
		}
		vocabulary = f.updatedVocabulary()
	}

	vocabPath, err := f.store.SaveVocabulary(ctx, Target{
		Alias:    f.alias,
		Dir:      f.config.PathToSaveVocabulary,
		FileName: VocabularyFile,
	}, vocabulary)
	if err != nil {
		return written, apperrors.PersistenceError(err, f.config.PathToSaveVocabulary)
	}
	written = append(written, vocabPath)

	f.logger.Info("countvec artifacts persisted",
		slog.String("alias", f.alias),
		slog.Any("paths", written))
	return written, nil
}

// updatedVocabulary appends the features seen in training that the stored
// vocabulary lacks, in lexical order
func (f *CountVecFeaturizer) updatedVocabulary() map[string]int {
	var missing []string
	for feature := range f.seen {
		if !f.stored.Contains(feature) {
			missing = append(missing, feature)
		}
	}
	sort.Strings(missing)
	for _, feature := range missing {
		f.stored.insert(feature)
	}
	return f.stored.TokenIndex()
}

// DefaultConfig returns the default countvec section
func (f *CountVecFeaturizer) DefaultConfig() any {
	return DefaultCountVecConfig()
}

var errNoStore = errors.New("no artifact store configured")
