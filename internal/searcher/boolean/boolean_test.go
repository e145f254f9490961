package boolean

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinochka/OIP/internal/corpus"
	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/normalizer"
	apperrors "github.com/labinochka/OIP/pkg/errors"
)

type mapPostings struct {
	postings map[string][]uint32
	universe []uint32
}

func (m mapPostings) Lookup(word string) *roaring.Bitmap {
	return roaring.BitmapOf(m.postings[word]...)
}

func (m mapPostings) Universe() *roaring.Bitmap {
	return roaring.BitmapOf(m.universe...)
}

var abPostings = mapPostings{
	postings: map[string][]uint32{
		"a": {1, 2, 3},
		"b": {2, 3, 4},
		"c": {5},
	},
	universe: []uint32{1, 2, 3, 4, 5},
}

func evalQuery(t *testing.T, query string) []uint32 {
	t.Helper()
	node, err := Parse(query)
	require.NoError(t, err, query)
	return Evaluate(node, abPostings).ToArray()
}

func TestEvaluateSetAlgebra(t *testing.T) {
	tests := []struct {
		query string
		want  []uint32
	}{
		{"A AND B", []uint32{2, 3}},
		{"A OR B", []uint32{1, 2, 3, 4}},
		{"NOT A", []uint32{4, 5}},
		{"a and not b", []uint32{1}},
		{"NOT NOT a", []uint32{1, 2, 3}},
		{"unknown", []uint32{}},
		{"NOT unknown", []uint32{1, 2, 3, 4, 5}},
		{"a OR b AND c", []uint32{1, 2, 3}},
		{"(a OR b) AND c", []uint32{}},
		{"(a OR c) AND NOT b", []uint32{1, 5}},
		{"NOT (a OR b)", []uint32{5}},
		{"((a))", []uint32{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, evalQuery(t, tt.query))
		})
	}
}

func TestEvaluateDoesNotMutatePostings(t *testing.T) {
	universe := roaring.BitmapOf(1, 2, 3)
	a := roaring.BitmapOf(1)
	p := fixedPostings{a: a, universe: universe}
	node, err := Parse("NOT a OR a AND a")
	require.NoError(t, err)
	Evaluate(node, p)
	assert.Equal(t, []uint32{1, 2, 3}, universe.ToArray())
	assert.Equal(t, []uint32{1}, a.ToArray())
}

type fixedPostings struct {
	a, universe *roaring.Bitmap
}

func (f fixedPostings) Lookup(string) *roaring.Bitmap { return f.a }
func (f fixedPostings) Universe() *roaring.Bitmap     { return f.universe }

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		query string
		tree  string
	}{
		{"a OR b AND c", "Or(a, And(b, c))"},
		{"a AND b OR c", "Or(And(a, b), c)"},
		{"a AND b AND c", "And(And(a, b), c)"},
		{"a OR b OR c", "Or(Or(a, b), c)"},
		{"NOT a AND b", "And(Not(a), b)"},
		{"NOT (a AND b)", "Not(Group(And(a, b)))"},
		{"(a OR b) AND c", "And(Group(Or(a, b)), c)"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.tree, dump(node))
		})
	}
}

func dump(n Node) string {
	switch n := n.(type) {
	case *Term:
		return n.Word
	case *And:
		return "And(" + dump(n.Left) + ", " + dump(n.Right) + ")"
	case *Or:
		return "Or(" + dump(n.Left) + ", " + dump(n.Right) + ")"
	case *Not:
		return "Not(" + dump(n.Operand) + ")"
	case *Group:
		return "Group(" + dump(n.Inner) + ")"
	}
	return "?"
}

func TestNodeString(t *testing.T) {
	node, err := Parse("  Cats and (dogs OR not Birds) ")
	require.NoError(t, err)
	assert.Equal(t, "cats AND (dogs OR NOT birds)", node.String())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		query string
		pos   int
	}{
		{"", 0},
		{"   ", 0},
		{"(a", 0},
		{"a)", 1},
		{"a AND", 5},
		{"AND a", 0},
		{"a OR OR b", 5},
		{"a b", 2},
		{"NOT", 3},
		{"()", 1},
		{"(a b)", 3},
		{"a AND (b OR c", 6},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query)
			assert.Nil(t, node)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.pos, perr.Pos)
			assert.ErrorIs(t, err, apperrors.ErrParse)
		})
	}
}

func TestParseNestingLimit(t *testing.T) {
	deep := strings.Repeat("(", MaxDepth+1) + "a" + strings.Repeat(")", MaxDepth+1)
	_, err := Parse(deep)
	assert.ErrorIs(t, err, apperrors.ErrParse)

	ok := strings.Repeat("(", MaxDepth) + "a" + strings.Repeat(")", MaxDepth)
	_, err = Parse(ok)
	assert.NoError(t, err)

	_, err = Parse(strings.Repeat("NOT ", MaxDepth+1) + "a")
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

func TestLexIgnoresPunctuation(t *testing.T) {
	node, err := Parse("cats! AND \"dogs\"")
	require.NoError(t, err)
	assert.Equal(t, "cats AND dogs", node.String())
}

func testSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	texts := map[string]string{
		"1": "cats chase mice",
		"2": "dogs chase cats",
		"3": "dogs sleep",
		"4": "birds sing",
	}
	docs := make([]corpus.Document, 0, len(texts))
	urls := make(map[string]string)
	for id, text := range texts {
		docs = append(docs, corpus.NewDocument(id, text))
		urls[id] = "http://example.com/" + id
	}
	c, err := corpus.New(docs, corpus.NewRegistry(urls))
	require.NoError(t, err)
	snap, err := index.NewBuilder().Build(context.Background(), c, normalizer.BuildVocabulary(c.Tokens()), "g")
	require.NoError(t, err)
	return snap
}

func TestSearchSnapshot(t *testing.T) {
	snap := testSnapshot(t)
	tests := []struct {
		query string
		want  []string
	}{
		{"cat AND dog", []string{"2"}},
		{"cats OR sleeping", []string{"1", "2", "3"}},
		{"NOT dog", []string{"1", "4"}},
		{"chase AND NOT dogs", []string{"1"}},
		{"zebra", []string{}},
		{"NOT zebra", []string{"1", "2", "3", "4"}},
		{"(bird OR mouse) AND NOT chase", []string{"4"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := Search(snap, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchMalformedQueryKeepsSnapshotUsable(t *testing.T) {
	snap := testSnapshot(t)

	got, err := Search(snap, "(cat AND dog")
	assert.True(t, errors.Is(err, apperrors.ErrParse))
	assert.Equal(t, []string{}, got)

	got, err = Search(snap, "cat AND dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, got)
}

func BenchmarkSearch(b *testing.B) {
	node, err := Parse("(a OR b) AND NOT c")
	require.NoError(b, err)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Evaluate(node, abPostings)
	}
}
