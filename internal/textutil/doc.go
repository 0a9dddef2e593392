// Package textutil provides the lexical relevance scoring behind historical
// meeting retrieval.
//
// Text is tokenized into lowercase Unicode words (stopwords and tokens shorter
// than 3 runes dropped), turned into term-frequency fingerprints, optionally
// re-weighted by corpus IDF, and compared with cosine similarity. Rank wraps
// the whole flow for a query against a candidate set.
package textutil
