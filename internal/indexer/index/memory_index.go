package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// DocStats holds one document's lemma counts and its total token count.
// Total includes tokens that map to no lemma.
type DocStats struct {
	Total  int
	Lemmas map[string]int
}

// MemoryIndex accumulates per-document contributions while a build is in
// progress. AddDocument may be called from many goroutines; each call only
// unions bits into postings and fills the document's own stats slot, so the
// frozen result does not depend on call order.
type MemoryIndex struct {
	mu       sync.Mutex
	docs     *DocTable
	postings map[string]*roaring.Bitmap
	stats    []DocStats
}

func NewMemoryIndex(docs *DocTable) *MemoryIndex {
	return &MemoryIndex{
		docs:     docs,
		postings: make(map[string]*roaring.Bitmap),
		stats:    make([]DocStats, docs.Len()),
	}
}

// AddDocument records the stats of the document at ordinal.
func (m *MemoryIndex) AddDocument(ordinal uint32, stats DocStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[ordinal] = stats
	for lemma, n := range stats.Lemmas {
		if n <= 0 {
			continue
		}
		bm, ok := m.postings[lemma]
		if !ok {
			bm = roaring.New()
			m.postings[lemma] = bm
		}
		bm.Add(ordinal)
	}
}

// Freeze returns the accumulated index and the per-ordinal stats. The
// MemoryIndex must not be used afterwards.
func (m *MemoryIndex) Freeze() (*InvertedIndex, []DocStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bm := range m.postings {
		bm.RunOptimize()
	}
	ix := &InvertedIndex{docs: m.docs, postings: m.postings}
	stats := m.stats
	m.postings = nil
	m.stats = nil
	return ix, stats
}
