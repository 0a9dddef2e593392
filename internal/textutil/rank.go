package textutil

import "sort"

// Scored pairs a candidate index with its similarity to the query.
type Scored struct {
	Index int
	Score float64
}

// Rank scores every candidate against query using TF-IDF cosine similarity
// over the candidate set and returns them best first. Equal scores keep the
// candidate order, so callers can pre-sort by recency.
func Rank(query string, candidates []string) []Scored {
	corpus := NewCorpus()
	prints := make([]*Fingerprint, len(candidates))
	for i, text := range candidates {
		prints[i] = NewFingerprint(text)
		corpus.Add(prints[i])
	}
	idf := corpus.IDF()
	q := NewFingerprint(query).WithIDF(idf)

	scored := make([]Scored, len(candidates))
	for i, fp := range prints {
		scored[i] = Scored{Index: i, Score: CosineSimilarity(q, fp.WithIDF(idf))}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	return scored
}
