// Package vector ranks documents against free-text queries by cosine
// similarity of TF-IDF vectors.
package vector

import (
	"cmp"
	"math"
	"slices"
	"sort"

	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/normalizer"
)

// Resolver maps a query token to a known lemma.
type Resolver interface {
	Resolve(word string) (string, bool)
}

// Hit is one ranked document.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// BuildQueryVector tokenizes text the same way documents are tokenized and
// weights each resolved lemma by (count / total query tokens) * IDF. Tokens
// that resolve to no lemma in idf still count in the total but add no
// weight.
func BuildQueryVector(text string, vocab Resolver, idf map[string]float64) index.Vector {
	tokens := normalizer.Tokenize(text)
	vec := make(index.Vector)
	if len(tokens) == 0 {
		return vec
	}
	counts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		lemma, ok := vocab.Resolve(token)
		if !ok {
			continue
		}
		if _, known := idf[lemma]; known {
			counts[lemma]++
		}
	}
	for lemma, n := range counts {
		if w := index.TF(n, len(tokens)) * idf[lemma]; w > 0 {
			vec[lemma] = w
		}
	}
	return vec
}

// CosineSimilarity returns a.b / (|a| |b|), or 0 when either vector has zero
// norm. The result is clamped to 1 to absorb rounding.
func CosineSimilarity(a, b index.Vector) float64 {
	return cosine(a, b, a.Norm(), b.Norm())
}

func cosine(a, b index.Vector, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for lemma, w := range a {
		if other, ok := b[lemma]; ok {
			dot += w * other
		}
	}
	return math.Min(1, dot/(normA*normB))
}

// Ranker scores a fixed set of document vectors. Norms are computed once.
type Ranker struct {
	ids     []string
	vectors []index.Vector
	norms   []float64
}

// NewRanker prepares vectors for repeated ranking. The vectors must not be
// modified afterwards.
func NewRanker(vectors map[string]index.Vector) *Ranker {
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	r := &Ranker{
		ids:     ids,
		vectors: make([]index.Vector, len(ids)),
		norms:   make([]float64, len(ids)),
	}
	for i, id := range ids {
		r.vectors[i] = vectors[id]
		r.norms[i] = vectors[id].Norm()
	}
	return r
}

// Rank returns every document with a positive score, ordered by score
// descending and then document id ascending. Nothing is truncated.
func (r *Ranker) Rank(query index.Vector) []Hit {
	hits := make([]Hit, 0)
	qnorm := query.Norm()
	if qnorm == 0 {
		return hits
	}
	for i, id := range r.ids {
		if score := cosine(query, r.vectors[i], qnorm, r.norms[i]); score > 0 {
			hits = append(hits, Hit{DocID: id, Score: score})
		}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.DocID, b.DocID)
	})
	return hits
}

// Search builds the query vector for query and ranks vectors against it.
func Search(query string, vectors map[string]index.Vector, idf map[string]float64, vocab Resolver) []Hit {
	return NewRanker(vectors).Rank(BuildQueryVector(query, vocab, idf))
}
