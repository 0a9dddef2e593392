package textutil

import (
	"math"
	"strings"
	"unicode"
)

// Fingerprint represents a term-frequency vector for text similarity comparison.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text.
// Returns nil if the text produces no valid tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	return newFingerprint(counts)
}

func newFingerprint(weights map[string]float64) *Fingerprint {
	var norm float64
	for _, w := range weights {
		norm += w * w
	}
	return &Fingerprint{tokens: weights, norm: math.Sqrt(norm)}
}

// Tokenize splits text into lowercase words on any non letter/digit rune and
// drops stopwords and tokens shorter than 3 runes.
func Tokenize(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if len([]rune(token)) < 3 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// Terms returns the unique tokens of text in first-seen order.
func Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, token := range Tokenize(text) {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// TokenCount returns the number of unique tokens in the fingerprint.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.tokens)
}

// WithIDF returns a new Fingerprint with TF-IDF weights applied.
// Terms absent from the IDF map retain their original weight.
func (f *Fingerprint) WithIDF(idf map[string]float64) *Fingerprint {
	if f == nil || len(idf) == 0 {
		return f
	}
	weighted := make(map[string]float64, len(f.tokens))
	for token, count := range f.tokens {
		w := count
		if idfVal, ok := idf[token]; ok {
			w *= idfVal
		}
		if w != 0 {
			weighted[token] = w
		}
	}
	if len(weighted) == 0 {
		return nil
	}
	return newFingerprint(weighted)
}

// Corpus collects document frequency statistics for IDF computation.
type Corpus struct {
	docCount int
	docFreq  map[string]int
}

// NewCorpus creates an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{docFreq: make(map[string]int)}
}

// Add registers a fingerprint's unique terms in the corpus.
func (c *Corpus) Add(fp *Fingerprint) {
	if c == nil || fp == nil {
		return
	}
	c.docCount++
	for token := range fp.tokens {
		c.docFreq[token]++
	}
}

// IDF computes smoothed inverse document frequency weights:
// 1 + log((N+1)/(1+df)), so terms present everywhere still count.
func (c *Corpus) IDF() map[string]float64 {
	if c == nil || c.docCount == 0 {
		return nil
	}
	idf := make(map[string]float64, len(c.docFreq))
	n := float64(c.docCount)
	for term, df := range c.docFreq {
		idf[term] = 1 + math.Log((n+1)/(1+float64(df)))
	}
	return idf
}

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, weight := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += weight * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`the and for are but not you all any can had her was one our out has
		have been from they will with this that there their what when which who would about into
		than then them these those were your also just more some such only over very said should
		could did does doing its it's let get got yes okay yeah think know going like want need
		really right well here how why because let's we're i'm don't`)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()
