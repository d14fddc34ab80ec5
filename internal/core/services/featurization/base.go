// Package featurization turns normalized corpora into vectors. The back ends
// here own vocabulary handling and persistence; the numeric training of
// embeddings is delegated to an EmbeddingTrainer.
package featurization

import (
	"context"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
)

// Target is where a featurizer writes its model or vocabulary
type Target = normalization.Target

// ArtifactStore persists featurizer models and vocabularies as JSON.
// An empty Target.Dir resolves to the default location of the alias.
type ArtifactStore interface {
	SaveModel(ctx context.Context, target Target, v any) (string, error)
	SaveVocabulary(ctx context.Context, target Target, v any) (string, error)
	LoadJSON(ctx context.Context, path string, v any) error
}

// Features is the output of a featurizer, one row per input record
type Features interface {
	Rows() int
	Dense() [][]float64
}

// SparseVector holds the non-zero counts of one record, sorted by index
type SparseVector struct {
	Indices []int `json:"indices"`
	Values  []int `json:"values"`
}

// SparseMatrix is a document-term count matrix
type SparseMatrix struct {
	Features int            `json:"features"`
	Vectors  []SparseVector `json:"vectors"`
}

// Rows returns the number of records
func (m *SparseMatrix) Rows() int {
	return len(m.Vectors)
}

// Dense expands the matrix
func (m *SparseMatrix) Dense() [][]float64 {
	out := make([][]float64, len(m.Vectors))
	for i, vec := range m.Vectors {
		row := make([]float64, m.Features)
		for j, idx := range vec.Indices {
			row[idx] = float64(vec.Values[j])
		}
		out[i] = row
	}
	return out
}

// DenseMatrix holds one embedding per row. Rows of unknown tokens are nil.
type DenseMatrix struct {
	Dim  int         `json:"dim"`
	Data [][]float64 `json:"data"`
}

// Rows returns the number of records
func (m *DenseMatrix) Rows() int {
	return len(m.Data)
}

// Dense returns the rows, with unknown tokens as zero vectors
func (m *DenseMatrix) Dense() [][]float64 {
	out := make([][]float64, len(m.Data))
	for i, row := range m.Data {
		if row == nil {
			row = make([]float64, m.Dim)
		}
		out[i] = row
	}
	return out
}

// tokenPattern keeps words of two or more characters, Unicode aware
var tokenPattern = regexp2.MustCompile(`\b\w\w+\b`, regexp2.None)

// Tokenize splits text into word tokens
func Tokenize(text string) ([]string, error) {
	var tokens []string
	m, err := tokenPattern.FindStringMatch(text)
	for m != nil && err == nil {
		tokens = append(tokens, m.String())
		m, err = tokenPattern.FindNextMatch(m)
	}
	return tokens, err
}

// NGrams returns the word n-grams of tokens for every n in [minN, maxN]
func NGrams(tokens []string, minN, maxN int) []string {
	if minN < 1 {
		minN = 1
	}
	if maxN < minN {
		maxN = minN
	}
	if maxN == 1 {
		return tokens
	}

	var out []string
	if minN == 1 {
		out = append(out, tokens...)
		minN = 2
	}
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
