package index

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// DocTable assigns dense ordinals to document ids. Ordinals follow ascending
// id order, so iterating a posting bitmap yields ids already sorted.
type DocTable struct {
	ids      []string
	ordinals map[string]uint32
	universe *roaring.Bitmap
}

// NewDocTable builds a table over ids. Duplicates are rejected.
func NewDocTable(ids []string) (*DocTable, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	t := &DocTable{
		ids:      sorted,
		ordinals: make(map[string]uint32, len(sorted)),
		universe: roaring.New(),
	}
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			return nil, fmt.Errorf("duplicate document id %q", id)
		}
		t.ordinals[id] = uint32(i)
	}
	if len(sorted) > 0 {
		t.universe.AddRange(0, uint64(len(sorted)))
	}
	return t, nil
}

// Len returns the number of documents.
func (t *DocTable) Len() int {
	return len(t.ids)
}

// ID returns the document id for an ordinal.
func (t *DocTable) ID(ordinal uint32) string {
	return t.ids[ordinal]
}

// Ordinal returns the ordinal of a document id.
func (t *DocTable) Ordinal(id string) (uint32, bool) {
	ord, ok := t.ordinals[id]
	return ord, ok
}

// IDs returns a copy of all document ids in ascending order.
func (t *DocTable) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Universe returns a fresh bitmap holding every ordinal.
func (t *DocTable) Universe() *roaring.Bitmap {
	return t.universe.Clone()
}

// IDsOf maps a bitmap of ordinals back to ascending document ids.
func (t *DocTable) IDsOf(bm *roaring.Bitmap) []string {
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if int(ord) < len(t.ids) {
			out = append(out, t.ids[ord])
		}
	}
	return out
}

// Entry is one lemma with its postings as sorted document ids.
type Entry struct {
	Lemma  string
	DocIDs []string
}

// InvertedIndex maps each lemma to the set of documents containing it.
// Lemmas with no documents are absent.
type InvertedIndex struct {
	docs     *DocTable
	postings map[string]*roaring.Bitmap
}

// FromEntries rebuilds an index from serialized entries. Every doc id must be
// in docs and every entry must be non-empty.
func FromEntries(docs *DocTable, entries []Entry) (*InvertedIndex, error) {
	ix := &InvertedIndex{
		docs:     docs,
		postings: make(map[string]*roaring.Bitmap, len(entries)),
	}
	for _, e := range entries {
		if _, dup := ix.postings[e.Lemma]; dup {
			return nil, fmt.Errorf("duplicate lemma %q", e.Lemma)
		}
		if len(e.DocIDs) == 0 {
			return nil, fmt.Errorf("lemma %q has an empty posting list", e.Lemma)
		}
		bm := roaring.New()
		for _, id := range e.DocIDs {
			ord, ok := docs.Ordinal(id)
			if !ok {
				return nil, fmt.Errorf("lemma %q references unknown document %q", e.Lemma, id)
			}
			bm.Add(ord)
		}
		ix.postings[e.Lemma] = bm
	}
	return ix, nil
}

// Docs returns the document table the postings refer to.
func (ix *InvertedIndex) Docs() *DocTable {
	return ix.docs
}

// Postings returns a copy of the posting bitmap for lemma, empty when the
// lemma is unknown.
func (ix *InvertedIndex) Postings(lemma string) *roaring.Bitmap {
	if bm, ok := ix.postings[lemma]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// DocIDs returns the ascending document ids posted under lemma.
func (ix *InvertedIndex) DocIDs(lemma string) []string {
	bm, ok := ix.postings[lemma]
	if !ok {
		return []string{}
	}
	return ix.docs.IDsOf(bm)
}

// DF returns the document frequency of lemma.
func (ix *InvertedIndex) DF(lemma string) int {
	if bm, ok := ix.postings[lemma]; ok {
		return int(bm.GetCardinality())
	}
	return 0
}

// Lemmas returns all indexed lemmas in ascending order.
func (ix *InvertedIndex) Lemmas() []string {
	lemmas := make([]string, 0, len(ix.postings))
	for lemma := range ix.postings {
		lemmas = append(lemmas, lemma)
	}
	sort.Strings(lemmas)
	return lemmas
}

// Entries returns the full index, lemma-sorted with id-sorted postings.
func (ix *InvertedIndex) Entries() []Entry {
	lemmas := ix.Lemmas()
	entries := make([]Entry, 0, len(lemmas))
	for _, lemma := range lemmas {
		entries = append(entries, Entry{Lemma: lemma, DocIDs: ix.docs.IDsOf(ix.postings[lemma])})
	}
	return entries
}

// Len returns the number of lemmas.
func (ix *InvertedIndex) Len() int {
	return len(ix.postings)
}

// PostingCount returns the sum of all posting list lengths.
func (ix *InvertedIndex) PostingCount() uint64 {
	var n uint64
	for _, bm := range ix.postings {
		n += bm.GetCardinality()
	}
	return n
}

// Equal reports whether both indexes hold the same lemma -> document id sets.
func (ix *InvertedIndex) Equal(other *InvertedIndex) bool {
	if ix.Len() != other.Len() {
		return false
	}
	for lemma := range ix.postings {
		a, b := ix.DocIDs(lemma), other.DocIDs(lemma)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
