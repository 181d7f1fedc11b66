// Package vectorize implements the TF-IDF feature space shared by training and
// inference. A Vectorizer is built once by Fit and is read-only afterwards.
package vectorize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

// ErrVocabularyEmpty is returned when no vocabulary can be built.
var ErrVocabularyEmpty = errors.New("vocabulary is empty")

const (
	DefaultMaxFeatures   = 5000
	DefaultMinTermLength = 2
)

// Params controls how the vocabulary is built and how documents are weighted.
type Params struct {
	MaxFeatures   int    `json:"max_features" yaml:"max_features" validate:"gte=0"`
	MinTermLength int    `json:"min_term_length" yaml:"min_term_length" validate:"gte=0"`
	SmoothIDF     bool   `json:"smooth_idf" yaml:"smooth_idf"`
	SublinearTF   bool   `json:"sublinear_tf" yaml:"sublinear_tf"`
	Norm          string `json:"norm" yaml:"norm" validate:"omitempty,oneof=l2 none"` // "l2" or "none"
}

// DefaultParams mirrors the settings the models have always been trained with.
func DefaultParams() Params {
	return Params{
		MaxFeatures:   DefaultMaxFeatures,
		MinTermLength: DefaultMinTermLength,
		SmoothIDF:     true,
		Norm:          "l2",
	}
}

// Vectorizer maps token sequences onto a closed vocabulary.
type Vectorizer struct {
	params Params
	terms  []string
	index  map[string]int
	idf    []float64
}

// Fit builds the vocabulary from a tokenized corpus. Terms are ranked by total
// frequency across the corpus (ties by term) and capped at MaxFeatures; the
// retained terms are indexed in lexicographic order.
func Fit(corpus [][]string, p Params) (*Vectorizer, error) {
	if len(corpus) == 0 {
		return nil, fmt.Errorf("fitting on empty corpus: %w", ErrVocabularyEmpty)
	}
	if p.MaxFeatures <= 0 {
		p.MaxFeatures = DefaultMaxFeatures
	}
	if p.Norm == "" {
		p.Norm = "l2"
	}

	tf := make(map[string]int)
	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, tok := range doc {
			if !p.keep(tok) {
				continue
			}
			tf[tok]++
			if !seen[tok] {
				df[tok]++
				seen[tok] = true
			}
		}
	}
	if len(tf) == 0 {
		return nil, fmt.Errorf("no terms in %d documents: %w", len(corpus), ErrVocabularyEmpty)
	}

	ranked := make([]string, 0, len(tf))
	for term := range tf {
		ranked = append(ranked, term)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if tf[ranked[i]] != tf[ranked[j]] {
			return tf[ranked[i]] > tf[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > p.MaxFeatures {
		ranked = ranked[:p.MaxFeatures]
	}
	sort.Strings(ranked)

	n := float64(len(corpus))
	idf := make([]float64, len(ranked))
	for i, term := range ranked {
		d := float64(df[term])
		if p.SmoothIDF {
			idf[i] = math.Log((1+n)/(1+d)) + 1
		} else {
			idf[i] = math.Log(n/d) + 1
		}
	}

	return newVectorizer(p, ranked, idf), nil
}

func newVectorizer(p Params, terms []string, idf []float64) *Vectorizer {
	index := make(map[string]int, len(terms))
	for i, term := range terms {
		index[term] = i
	}
	return &Vectorizer{params: p, terms: terms, index: index, idf: idf}
}

func (p Params) keep(tok string) bool {
	return utf8.RuneCountInString(tok) >= p.MinTermLength
}

// Len is the fixed dimension of every vector produced by Transform.
func (v *Vectorizer) Len() int {
	return len(v.terms)
}

// Params returns the parameters the vectorizer was fitted with.
func (v *Vectorizer) Params() Params {
	return v.params
}

// Vocabulary returns a copy of the terms in index order.
func (v *Vectorizer) Vocabulary() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// IDF returns the weight of term, and false when the term is out of vocabulary.
func (v *Vectorizer) IDF(term string) (float64, bool) {
	i, ok := v.index[term]
	if !ok {
		return 0, false
	}
	return v.idf[i], true
}

// Transform weights tokens over the fitted vocabulary. Unknown terms are
// ignored and an empty input yields the zero vector.
func (v *Vectorizer) Transform(tokens []string) FeatureVector {
	counts := make(map[int]float64)
	for _, tok := range tokens {
		if i, ok := v.index[tok]; ok {
			counts[i]++
		}
	}

	fv := FeatureVector{
		Dim:     len(v.terms),
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for i := range counts {
		fv.Indices = append(fv.Indices, i)
	}
	sort.Ints(fv.Indices)

	var norm float64
	for _, i := range fv.Indices {
		w := counts[i]
		if v.params.SublinearTF {
			w = 1 + math.Log(w)
		}
		w *= v.idf[i]
		fv.Values = append(fv.Values, w)
		norm += w * w
	}
	if v.params.Norm == "l2" && norm > 0 {
		norm = math.Sqrt(norm)
		for k := range fv.Values {
			fv.Values[k] /= norm
		}
	}
	return fv
}

// TransformAll transforms every document of a corpus.
func (v *Vectorizer) TransformAll(corpus [][]string) []FeatureVector {
	out := make([]FeatureVector, len(corpus))
	for i, doc := range corpus {
		out[i] = v.Transform(doc)
	}
	return out
}

type snapshot struct {
	Params Params    `json:"params"`
	Terms  []string  `json:"terms"`
	IDF    []float64 `json:"idf"`
}

// MarshalJSON serialises the full fitted state. encoding/json writes float64
// in the shortest form that parses back to the same value.
func (v *Vectorizer) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{Params: v.params, Terms: v.terms, IDF: v.idf})
}

// UnmarshalJSON restores a fitted vectorizer.
func (v *Vectorizer) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s.Terms) == 0 {
		return ErrVocabularyEmpty
	}
	if len(s.Terms) != len(s.IDF) {
		return fmt.Errorf("vectorizer state has %d terms but %d weights", len(s.Terms), len(s.IDF))
	}
	*v = *newVectorizer(s.Params, s.Terms, s.IDF)
	return nil
}
