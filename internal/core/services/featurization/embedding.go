package featurization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// Word2VecAlias is the pipeline alias of the embedding featurizer
const Word2VecAlias = "word2vec"

// File names used when persisting
const (
	EmbeddingModelFile      = "word2vec_model.json"
	UpdatedVocabularyFile   = "updated_vocab.json"
	EmbeddingMethodCBOW     = "cbow"
	EmbeddingMethodSkipGram = "skipgram"
)

// ErrNoTrainer is returned when an embedding featurizer has to train
// without a trainer
var ErrNoTrainer = errors.New("no embedding trainer configured")

// EmbeddingConfig is the word2vec section of a pipeline document
type EmbeddingConfig struct {
	Active                    bool   `yaml:"active" json:"active"`
	Method                    string `yaml:"method" json:"method"`
	IgnoreFreqHigherThan      int    `yaml:"ignore_freq_higher_than" json:"ignore_freq_higher_than"`
	EmbeddingsSize            int    `yaml:"embeddings_size" json:"embeddings_size"`
	Window                    int    `yaml:"window" json:"window"`
	Epochs                    int    `yaml:"epochs" json:"epochs"`
	Seed                      *int64 `yaml:"seed" json:"seed"`
	PathToSaveModel           string `yaml:"path_to_save_model" json:"path_to_save_model"`
	PathToSaveVocabulary      string `yaml:"path_to_save_vocabulary" json:"path_to_save_vocabulary"`
	PathToGetTrainedModel     string `yaml:"path_to_get_trained_model" json:"path_to_get_trained_model"`
	PathToGetStoredVocabulary string `yaml:"path_to_get_stored_vocabulary" json:"path_to_get_stored_vocabulary"`
	UpdateStoredVocabulary    bool   `yaml:"update_stored_vocabulary" json:"update_stored_vocabulary"`
}

// DefaultEmbeddingConfig returns a small CBOW setup
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Active:               true,
		Method:               EmbeddingMethodCBOW,
		IgnoreFreqHigherThan: 1,
		EmbeddingsSize:       64,
		Window:               5,
		Epochs:               5,
	}
}

// EmbeddingParams is what a trainer needs to know from the configuration
type EmbeddingParams struct {
	SkipGram bool
	MinCount int
	Dim      int
	Window   int
	Epochs   int
	Seed     *int64
}

// Embeddings maps each token to its vector
type Embeddings map[string][]float64

// EmbeddingTrainer learns token vectors from tokenized sentences. previous
// holds the vectors of a loaded model, nil when training from scratch.
type EmbeddingTrainer interface {
	Train(ctx context.Context, sentences [][]string, params EmbeddingParams, previous Embeddings) (Embeddings, error)
}

// EmbeddingTrainerFunc adapts a function to EmbeddingTrainer
type EmbeddingTrainerFunc func(ctx context.Context, sentences [][]string, params EmbeddingParams, previous Embeddings) (Embeddings, error)

// Train calls fn
func (fn EmbeddingTrainerFunc) Train(ctx context.Context, sentences [][]string, params EmbeddingParams, previous Embeddings) (Embeddings, error) {
	return fn(ctx, sentences, params, previous)
}

type embeddingModel struct {
	Method  string     `json:"method"`
	Dim     int        `json:"dim"`
	Vectors Embeddings `json:"vectors"`
}

// EmbeddingFeaturizer prepares the sentence vocabulary of a corpus and
// hands it to an EmbeddingTrainer
type EmbeddingFeaturizer struct {
	alias   string
	config  EmbeddingConfig
	trainer EmbeddingTrainer
	store   ArtifactStore
	logger  *slog.Logger

	model *embeddingModel
	words *Vocabulary
}

// EmbeddingOption configures an EmbeddingFeaturizer
type EmbeddingOption func(*EmbeddingFeaturizer)

// WithTrainer sets the trainer
func WithTrainer(trainer EmbeddingTrainer) EmbeddingOption {
	return func(f *EmbeddingFeaturizer) {
		f.trainer = trainer
	}
}

// WithEmbeddingStore persists models and vocabularies through store
func WithEmbeddingStore(store ArtifactStore) EmbeddingOption {
	return func(f *EmbeddingFeaturizer) {
		f.store = store
	}
}

// WithEmbeddingLogger sets the logger
func WithEmbeddingLogger(logger *slog.Logger) EmbeddingOption {
	return func(f *EmbeddingFeaturizer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewEmbeddingFeaturizer creates an untrained featurizer. An empty alias
// means Word2VecAlias.
func NewEmbeddingFeaturizer(cfg EmbeddingConfig, alias string, opts ...EmbeddingOption) *EmbeddingFeaturizer {
	if alias == "" {
		alias = Word2VecAlias
	}
	f := &EmbeddingFeaturizer{
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
func (f *EmbeddingFeaturizer) Alias() string {
	return f.alias
}

// Config returns the configuration the featurizer was built with
func (f *EmbeddingFeaturizer) Config() EmbeddingConfig {
	return f.config
}

// DefaultConfig returns the default word2vec section
func (f *EmbeddingFeaturizer) DefaultConfig() any {
	return DefaultEmbeddingConfig()
}

// Trained reports whether vectors are available
func (f *EmbeddingFeaturizer) Trained() bool {
	return f.model != nil
}

// Params derives the trainer parameters from the configuration
func (f *EmbeddingFeaturizer) Params() (EmbeddingParams, error) {
	params := EmbeddingParams{
		MinCount: f.config.IgnoreFreqHigherThan,
		Dim:      f.config.EmbeddingsSize,
		Window:   f.config.Window,
		Epochs:   f.config.Epochs,
		Seed:     f.config.Seed,
	}
	switch strings.ToLower(f.config.Method) {
	case "", EmbeddingMethodCBOW:
	case EmbeddingMethodSkipGram:
		params.SkipGram = true
	default:
		return params, apperrors.ConfigError(nil, fmt.Sprintf("unknown embedding method %q", f.config.Method))
	}
	if params.Dim <= 0 {
		return params, apperrors.ConfigError(nil, "embeddings_size must be positive")
	}
	return params, nil
}

// Train learns vectors for the sentences of trainset. Every call trains
// again; a model loaded from path_to_get_trained_model is passed to the
// trainer as the starting point.
func (f *EmbeddingFeaturizer) Train(ctx context.Context, trainset *corpus.Source, persist bool) error {
	if trainset == nil {
		return apperrors.InvalidCorpus(nil)
	}
	if f.trainer == nil {
		return apperrors.ConfigError(ErrNoTrainer, fmt.Sprintf("%s cannot train", f.alias))
	}
	params, err := f.Params()
	if err != nil {
		return err
	}

	f.logger.Info("embedding training has started", slog.String("alias", f.alias))

	sentencesVocab, err := BuildVocabulary(ctx, trainset, VocabularyOptions{Sentences: true})
	if err != nil {
		return err
	}
	if path := f.config.PathToGetStoredVocabulary; path != "" {
		stored, err := corpus.FromPath(path).Collect(ctx)
		if err != nil {
			f.logger.Warn("could not load stored sentences",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		for _, sentence := range stored {
			if _, err := sentencesVocab.Add(sentence); err != nil {
				return err
			}
		}
	}

	var sentences [][]string
	f.words = NewVocabulary(VocabularyOptions{})
	for tokens := range sentencesVocab.Sentences() {
		sentences = append(sentences, tokens)
		for _, token := range tokens {
			f.words.insert(token)
		}
	}

	var previous Embeddings
	if f.model == nil && f.config.PathToGetTrainedModel != "" {
		if err := f.Load(ctx, f.config.PathToGetTrainedModel); err != nil {
			f.logger.Warn("no embedding model to load",
				slog.String("path", f.config.PathToGetTrainedModel),
				slog.String("error", err.Error()))
		}
	}
	if f.model != nil {
		previous = f.model.Vectors
	}

	vectors, err := f.trainer.Train(ctx, sentences, params, previous)
	if err != nil {
		return fmt.Errorf("embedding training failed: %w", err)
	}
	for token, vec := range vectors {
		if len(vec) != params.Dim {
			return fmt.Errorf("trainer returned a %d dimensional vector for %q, expected %d", len(vec), token, params.Dim)
		}
	}

	f.model = &embeddingModel{
		Method:  strings.ToLower(f.config.Method),
		Dim:     params.Dim,
		Vectors: vectors,
	}

	f.logger.Info("embedding training finished",
		slog.String("alias", f.alias),
		slog.Int("sentences", len(sentences)),
		slog.Int("tokens", len(vectors)),
	)

	if persist {
		if _, err := f.Persist(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Load restores a model saved by Persist
func (f *EmbeddingFeaturizer) Load(ctx context.Context, path string) error {
	if f.store == nil {
		return apperrors.ConfigError(errNoStore, "cannot load embedding model")
	}
	var model embeddingModel
	if err := f.store.LoadJSON(ctx, path, &model); err != nil {
		return err
	}
	f.model = &model
	f.logger.Info("embedding model loaded", slog.String("path", path))
	return nil
}

// Vector returns the embedding of token
func (f *EmbeddingFeaturizer) Vector(token string) ([]float64, bool) {
	if f.model == nil {
		return nil, false
	}
	vec, ok := f.model.Vectors[token]
	return vec, ok
}

// Process returns one row per token. Tokens without a vector get a nil row.
func (f *EmbeddingFeaturizer) Process(ctx context.Context, tokens []string) (Features, error) {
	if f.model == nil && f.config.PathToGetTrainedModel != "" {
		if err := f.Load(ctx, f.config.PathToGetTrainedModel); err != nil {
			f.logger.Warn("could not load trained embedding model",
				slog.String("path", f.config.PathToGetTrainedModel),
				slog.String("error", err.Error()))
		}
	}
	if f.model == nil {
		return nil, apperrors.NoTrainedModel(f.alias)
	}

	matrix := &DenseMatrix{Dim: f.model.Dim, Data: make([][]float64, len(tokens))}
	for i, token := range tokens {
		if vec, ok := f.model.Vectors[token]; ok {
			matrix.Data[i] = vec
		}
	}
	return matrix, nil
}

// Persist writes the vectors, and the word vocabulary of the last training
// corpus when update_stored_vocabulary is set
func (f *EmbeddingFeaturizer) Persist(ctx context.Context) ([]string, error) {
	if f.model == nil {
		return nil, apperrors.NoTrainedModel(f.alias)
	}
	if f.store == nil {
		f.logger.Warn("persistence requested but no artifact store configured", slog.String("alias", f.alias))
		return nil, nil
	}

	modelPath, err := f.store.SaveModel(ctx, Target{
		Alias:    f.alias,
		Dir:      f.config.PathToSaveModel,
		FileName: EmbeddingModelFile,
	}, f.model)
	if err != nil {
		return nil, apperrors.PersistenceError(err, f.config.PathToSaveModel)
	}
	written := []string{modelPath}

	if !f.config.UpdateStoredVocabulary || f.words == nil {
		f.logger.Debug("embedding vocabulary not updated", slog.String("alias", f.alias))
		return written, nil
	}

	vocabPath, err := f.store.SaveVocabulary(ctx, Target{
		Alias:    f.alias,
		Dir:      f.config.PathToSaveVocabulary,
		FileName: UpdatedVocabularyFile,
	}, f.words.TokenIndex())
	if err != nil {
		return written, apperrors.PersistenceError(err, f.config.PathToSaveVocabulary)
	}
	return append(written, vocabPath), nil
}
