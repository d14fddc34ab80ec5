package featurization

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
)

// DefaultUnkToken stands for every text missing from a vocabulary
const DefaultUnkToken = "<<UNK>>"

// VocabularyOptions controls how texts are added to a Vocabulary
type VocabularyOptions struct {
	// Sentences keeps every record as one entry. Otherwise BuildVocabulary
	// splits records on whitespace and adds each token.
	Sentences bool
	// AddUnk makes lookups of unknown texts return the UNK index instead
	// of failing.
	AddUnk bool
	// UnkToken is added first when not empty
	UnkToken string
	// Fold lowercases and strips diacritics before adding or looking up
	Fold bool
	// StripPunctuation removes punctuation before adding or looking up
	StripPunctuation bool
}

// DefaultVocabularyOptions returns token mode with an UNK entry
func DefaultVocabularyOptions() VocabularyOptions {
	return VocabularyOptions{
		AddUnk:   true,
		UnkToken: DefaultUnkToken,
	}
}

// Vocabulary is a text to index bijection. Indices are assigned in
// insertion order.
type Vocabulary struct {
	opts      VocabularyOptions
	textToIdx map[string]int
	idxToText map[int]string
	next      int
	unkIdx    int
}

// NewVocabulary creates an empty vocabulary (plus UNK when configured)
func NewVocabulary(opts VocabularyOptions) *Vocabulary {
	return FromIndex(nil, opts)
}

// FromIndex rebuilds a vocabulary from a stored text to index mapping.
// UNK is added only when missing.
func FromIndex(index map[string]int, opts VocabularyOptions) *Vocabulary {
	v := &Vocabulary{
		opts:      opts,
		textToIdx: make(map[string]int, len(index)+1),
		idxToText: make(map[int]string, len(index)+1),
		unkIdx:    -1,
	}
	for text, idx := range index {
		v.textToIdx[text] = idx
		v.idxToText[idx] = text
		// stored vocabularies may have gaps
		if idx >= v.next {
			v.next = idx + 1
		}
	}
	if opts.UnkToken != "" {
		v.unkIdx = v.insert(opts.UnkToken)
	}
	return v
}

// BuildVocabulary adds every record of src, or every token of it outside
// sentence mode
func BuildVocabulary(ctx context.Context, src *corpus.Source, opts VocabularyOptions) (*Vocabulary, error) {
	if src == nil {
		return nil, apperrors.InvalidCorpus(nil)
	}
	v := NewVocabulary(opts)
	for text, err := range src.All() {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.Sentences {
			if _, err := v.Add(text); err != nil {
				return nil, err
			}
			continue
		}
		for _, token := range strings.Fields(text) {
			if _, err := v.Add(token); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

func (v *Vocabulary) prepare(text string) (string, error) {
	if v.opts.Fold {
		text = normalization.FoldLowercaseDiacritic(text)
	}
	if v.opts.StripPunctuation {
		return normalization.StripPunctuation(text, "")
	}
	return text, nil
}

func (v *Vocabulary) insert(text string) int {
	if idx, ok := v.textToIdx[text]; ok {
		return idx
	}
	idx := v.next
	v.next++
	v.textToIdx[text] = idx
	v.idxToText[idx] = text
	return idx
}

// Add inserts text and returns its index. Known texts keep their index.
func (v *Vocabulary) Add(text string) (int, error) {
	prepared, err := v.prepare(text)
	if err != nil {
		return 0, err
	}
	return v.insert(prepared), nil
}

// Index returns the index of text. Unknown texts map to the UNK index when
// AddUnk is set and fail otherwise.
func (v *Vocabulary) Index(text string) (int, error) {
	prepared, err := v.prepare(text)
	if err != nil {
		return 0, err
	}
	if idx, ok := v.textToIdx[prepared]; ok {
		return idx, nil
	}
	if v.opts.AddUnk {
		return v.unkIdx, nil
	}
	return 0, apperrors.NotFound(fmt.Sprintf("%q is not in the vocabulary", text))
}

// Text returns the entry stored at idx
func (v *Vocabulary) Text(idx int) (string, error) {
	text, ok := v.idxToText[idx]
	if !ok {
		return "", apperrors.NotFound(fmt.Sprintf("index %d is not in the vocabulary", idx))
	}
	return text, nil
}

// Contains reports whether text is already an entry
func (v *Vocabulary) Contains(text string) bool {
	prepared, err := v.prepare(text)
	if err != nil {
		return false
	}
	_, ok := v.textToIdx[prepared]
	return ok
}

// UnkIndex returns the UNK index, -1 without UNK
func (v *Vocabulary) UnkIndex() int {
	return v.unkIdx
}

// Len returns the number of entries
func (v *Vocabulary) Len() int {
	return len(v.textToIdx)
}

// Entries returns every entry in index order
func (v *Vocabulary) Entries() []string {
	indices := make([]int, 0, len(v.idxToText))
	for idx := range v.idxToText {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = v.idxToText[idx]
	}
	return out
}

// All yields every entry in index order
func (v *Vocabulary) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, text := range v.Entries() {
			if !yield(text) {
				return
			}
		}
	}
}

// Sentences yields every entry split on whitespace, skipping UNK. This is
// the shape embedding trainers consume.
func (v *Vocabulary) Sentences() iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for _, text := range v.Entries() {
			if v.unkIdx >= 0 && text == v.opts.UnkToken {
				continue
			}
			tokens := strings.Fields(text)
			if len(tokens) == 0 {
				continue
			}
			if !yield(tokens) {
				return
			}
		}
	}
}

// Head returns the first n entries
func (v *Vocabulary) Head(n int) []string {
	entries := v.Entries()
	if n < len(entries) {
		entries = entries[:max(n, 0)]
	}
	return entries
}

// Tail returns the last n entries
func (v *Vocabulary) Tail(n int) []string {
	entries := v.Entries()
	if n < len(entries) {
		entries = entries[len(entries)-max(n, 0):]
	}
	return entries
}

// TokenIndex returns a copy of the text to index mapping, the form in which
// vocabularies are stored
func (v *Vocabulary) TokenIndex() map[string]int {
	out := make(map[string]int, len(v.textToIdx))
	for text, idx := range v.textToIdx {
		out[text] = idx
	}
	return out
}

func (v *Vocabulary) String() string {
	return fmt.Sprintf("Vocabulary(size=%d)", v.Len())
}
