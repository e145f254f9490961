package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/labinochka/OIP/internal/corpus"
	"github.com/labinochka/OIP/internal/normalizer"
)

// idfTolerance absorbs the 6-decimal rounding of persisted IDF values.
const idfTolerance = 1e-6

// Snapshot is one complete, immutable build: vocabulary, inverted index,
// IDF table, per-document TF-IDF vectors and the URL registry. Query engines
// only ever read a Snapshot; a rebuild produces a new one.
type Snapshot struct {
	generation string
	vocab      *normalizer.Vocabulary
	index      *InvertedIndex
	idf        map[string]float64
	vectors    map[string]Vector
	registry   *corpus.Registry
	stats      map[string]DocStats
}

// SnapshotParams carries the parts NewSnapshot validates and assembles.
// Stats is optional; it is only known right after a build.
type SnapshotParams struct {
	Generation string
	Vocabulary *normalizer.Vocabulary
	Index      *InvertedIndex
	IDF        map[string]float64
	Vectors    map[string]Vector
	Registry   *corpus.Registry
	Stats      map[string]DocStats
}

// NewSnapshot checks that the parts describe one consistent build:
//   - the registry, the document table and the vector set cover the same ids
//   - every indexed lemma is a vocabulary lemma with an IDF of ln(N/DF)
//   - a document's vector holds exactly the lemmas whose postings contain it
func NewSnapshot(p SnapshotParams) (*Snapshot, error) {
	if p.Vocabulary == nil || p.Index == nil || p.Registry == nil {
		return nil, fmt.Errorf("snapshot is missing vocabulary, index or registry")
	}
	docs := p.Index.Docs()
	n := docs.Len()
	if p.Registry.Len() != n {
		return nil, fmt.Errorf("registry has %d documents, index has %d", p.Registry.Len(), n)
	}
	for _, id := range docs.IDs() {
		if _, ok := p.Registry.URL(id); !ok {
			return nil, fmt.Errorf("document %q has no registry entry", id)
		}
	}
	if len(p.Vectors) != n {
		return nil, fmt.Errorf("have %d document vectors for %d documents", len(p.Vectors), n)
	}
	if len(p.IDF) != p.Index.Len() {
		return nil, fmt.Errorf("idf table has %d lemmas, index has %d", len(p.IDF), p.Index.Len())
	}

	posted := make(map[string]int, n)
	for lemma, bm := range p.Index.postings {
		if !p.Vocabulary.HasLemma(lemma) {
			return nil, fmt.Errorf("indexed lemma %q is not in the vocabulary", lemma)
		}
		idf, ok := p.IDF[lemma]
		if !ok {
			return nil, fmt.Errorf("lemma %q has no idf", lemma)
		}
		if want := IDF(n, int(bm.GetCardinality())); math.Abs(idf-want) > idfTolerance {
			return nil, fmt.Errorf("lemma %q has idf %.6f, want %.6f", lemma, idf, want)
		}
		it := bm.Iterator()
		for it.HasNext() {
			posted[docs.ID(it.Next())]++
		}
	}
	for id, vec := range p.Vectors {
		ord, ok := docs.Ordinal(id)
		if !ok {
			return nil, fmt.Errorf("vector for unknown document %q", id)
		}
		if len(vec) != posted[id] {
			return nil, fmt.Errorf("document %q has %d weighted lemmas, %d postings", id, len(vec), posted[id])
		}
		for lemma := range vec {
			bm, ok := p.Index.postings[lemma]
			if !ok || !bm.Contains(ord) {
				return nil, fmt.Errorf("document %q weights lemma %q it is not posted under", id, lemma)
			}
		}
	}

	return &Snapshot{
		generation: p.Generation,
		vocab:      p.Vocabulary,
		index:      p.Index,
		idf:        p.IDF,
		vectors:    p.Vectors,
		registry:   p.Registry,
		stats:      p.Stats,
	}, nil
}

// Generation identifies the build.
func (s *Snapshot) Generation() string { return s.generation }

// Vocabulary returns the lemma partition.
func (s *Snapshot) Vocabulary() *normalizer.Vocabulary { return s.vocab }

// Index returns the inverted index.
func (s *Snapshot) Index() *InvertedIndex { return s.index }

// Docs returns the document table, which is also the NOT universe.
func (s *Snapshot) Docs() *DocTable { return s.index.docs }

// Registry returns the id -> URL registry.
func (s *Snapshot) Registry() *corpus.Registry { return s.registry }

// DocumentCount returns the number of documents in the build.
func (s *Snapshot) DocumentCount() int { return s.index.docs.Len() }

// URL returns the source URL of a document.
func (s *Snapshot) URL(docID string) string {
	url, _ := s.registry.URL(docID)
	return url
}

// DF returns the document frequency of lemma, 0 when unknown.
func (s *Snapshot) DF(lemma string) int { return s.index.DF(lemma) }

// IDF returns the inverse document frequency of lemma.
func (s *Snapshot) IDF(lemma string) (float64, bool) {
	idf, ok := s.idf[lemma]
	return idf, ok
}

// IDFTable returns the lemma -> IDF table. It must not be modified.
func (s *Snapshot) IDFTable() map[string]float64 { return s.idf }

// Vectors returns every document's TF-IDF vector keyed by document id. The
// map and its vectors must not be modified.
func (s *Snapshot) Vectors() map[string]Vector { return s.vectors }

// Vector returns a copy of one document's TF-IDF vector.
func (s *Snapshot) Vector(docID string) (Vector, bool) {
	v, ok := s.vectors[docID]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Stats returns the lemma counts of a document. Stats are only available on
// a freshly built snapshot, not on one loaded from disk.
func (s *Snapshot) Stats(docID string) (DocStats, bool) {
	st, ok := s.stats[docID]
	return st, ok
}

// Summary is a compact description used by logs and the index endpoint.
type Summary struct {
	Generation string `json:"generation"`
	Documents  int    `json:"documents"`
	Lemmas     int    `json:"lemmas"`
	Tokens     int    `json:"tokens"`
	Postings   uint64 `json:"postings"`
}

func (s *Snapshot) Summary() Summary {
	return Summary{
		Generation: s.generation,
		Documents:  s.DocumentCount(),
		Lemmas:     s.index.Len(),
		Tokens:     s.vocab.TokenCount(),
		Postings:   s.index.PostingCount(),
	}
}

// LemmasOf returns the sorted lemmas weighted in a document's vector.
func (s *Snapshot) LemmasOf(docID string) []string {
	v := s.vectors[docID]
	lemmas := make([]string, 0, len(v))
	for lemma := range v {
		lemmas = append(lemmas, lemma)
	}
	sort.Strings(lemmas)
	return lemmas
}
