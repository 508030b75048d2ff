// Package retrieval provides lexical similarity retrieval over library
// titles: a TF-IDF space with unigram and bigram terms, common English words
// suppressed, queried by cosine similarity.
package retrieval

import (
	"math"
	"sort"
	"strings"
)

// Scored is one retrieval hit.
type Scored struct {
	Citekey string
	Score   float64
}

// Index is a read-only TF-IDF similarity space. Build it once per run with
// BuildIndex; it is safe for concurrent queries afterwards.
type Index struct {
	citekeys []string
	docs     []map[string]float64 // l2-normalized term weights per document
	idf      map[string]float64
}

// BuildIndex indexes one title per citekey, in the given order. Empty titles
// become empty documents; they never score above zero but stay addressable.
func BuildIndex(citekeys []string, titles []string) *Index {
	idx := &Index{
		citekeys: append([]string(nil), citekeys...),
		idf:      map[string]float64{},
	}

	termsPerDoc := make([][]string, len(titles))
	df := map[string]int{}
	for i, title := range titles {
		terms := terms(title)
		termsPerDoc[i] = terms
		for _, t := range uniqueTerms(terms) {
			df[t]++
		}
	}

	// Smoothed idf: ln((1+n)/(1+df)) + 1.
	n := float64(len(titles))
	for term, count := range df {
		idx.idf[term] = math.Log((1+n)/(1+float64(count))) + 1
	}

	idx.docs = make([]map[string]float64, len(titles))
	for i, terms := range termsPerDoc {
		idx.docs[i] = idx.vectorize(terms)
	}
	return idx
}

// TopK returns up to k (citekey, score) pairs sorted by descending cosine
// similarity, ties broken by citekey ascending. An empty query or an empty
// index yields an empty result, never an error. Zero-score documents are
// included so a sparse library still surfaces candidates.
func (idx *Index) TopK(query string, k int) []Scored {
	queryText := strings.TrimSpace(query)
	if queryText == "" || len(idx.citekeys) == 0 || k <= 0 {
		return nil
	}

	queryVec := idx.vectorize(terms(queryText))

	scored := make([]Scored, len(idx.citekeys))
	for i, ck := range idx.citekeys {
		scored[i] = Scored{Citekey: ck, Score: dot(queryVec, idx.docs[i])}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Citekey < scored[j].Citekey
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// vectorize converts terms to an l2-normalized tf-idf vector. Terms outside
// the index vocabulary are dropped.
func (idx *Index) vectorize(terms []string) map[string]float64 {
	vec := map[string]float64{}
	for _, t := range terms {
		if _, known := idx.idf[t]; known {
			vec[t]++
		}
	}

	var norm float64
	for t := range vec {
		vec[t] *= idx.idf[t]
		norm += vec[t] * vec[t]
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for t := range vec {
		vec[t] /= norm
	}
	return vec
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for t, w := range a {
		sum += w * b[t]
	}
	return sum
}

// terms tokenizes text into lowercase word tokens of two or more characters,
// drops stopwords, and returns unigrams plus adjacent bigrams.
func terms(text string) []string {
	tokens := tokenize(text)

	out := make([]string, 0, len(tokens)*2)
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)

	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() >= 2 {
			token := current.String()
			if !stopwords[token] {
				tokens = append(tokens, token)
			}
		}
		current.Reset()
	}

	for _, r := range lower {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// stopwords is a compact English stopword list for title text.
var stopwords = func() map[string]bool {
	words := []string{
		"about", "above", "after", "again", "against", "all", "also", "am",
		"an", "and", "any", "are", "as", "at", "be", "because", "been",
		"before", "being", "below", "between", "both", "but", "by", "can",
		"could", "did", "do", "does", "doing", "down", "during", "each",
		"few", "for", "from", "further", "had", "has", "have", "having",
		"he", "her", "here", "hers", "him", "his", "how", "if", "in",
		"into", "is", "it", "its", "itself", "just", "more", "most", "my",
		"no", "nor", "not", "now", "of", "off", "on", "once", "only", "or",
		"other", "our", "ours", "out", "over", "own", "same", "she",
		"should", "so", "some", "such", "than", "that", "the", "their",
		"theirs", "them", "then", "there", "these", "they", "this",
		"those", "through", "to", "too", "under", "until", "up", "upon",
		"very", "was", "we", "were", "what", "when", "where", "which",
		"while", "who", "whom", "why", "will", "with", "would", "you",
		"your", "yours",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()
