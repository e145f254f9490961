package boolean

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/labinochka/OIP/internal/indexer/index"
)

// Postings resolves query words to posting bitmaps over a fixed universe.
// Lookup must return a bitmap the caller may keep; unknown words yield an
// empty bitmap.
type Postings interface {
	Lookup(word string) *roaring.Bitmap
	Universe() *roaring.Bitmap
}

// Evaluate computes the matching document ordinals of node.
func Evaluate(node Node, p Postings) *roaring.Bitmap {
	return node.eval(p)
}

type snapshotPostings struct {
	snap *index.Snapshot
}

// FromSnapshot resolves words through the snapshot vocabulary: as a surface
// token, as a lemma, then as the lemma the rule cascade assigns.
func FromSnapshot(snap *index.Snapshot) Postings {
	return snapshotPostings{snap: snap}
}

func (s snapshotPostings) Lookup(word string) *roaring.Bitmap {
	lemma, ok := s.snap.Vocabulary().Resolve(word)
	if !ok {
		return roaring.New()
	}
	return s.snap.Index().Postings(lemma)
}

func (s snapshotPostings) Universe() *roaring.Bitmap {
	return s.snap.Docs().Universe()
}

// Search parses and evaluates query against snap and returns the matching
// document ids in ascending order. A malformed query yields an empty result
// and a *ParseError.
func Search(snap *index.Snapshot, query string) ([]string, error) {
	node, err := Parse(query)
	if err != nil {
		return []string{}, err
	}
	return snap.Docs().IDsOf(Evaluate(node, FromSnapshot(snap))), nil
}
