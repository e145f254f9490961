package boolean

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Node is a parsed query expression.
type Node interface {
	// String renders the expression in a canonical, fully explicit form.
	String() string
	eval(p Postings) *roaring.Bitmap
}

// Term is a single query word.
type Term struct {
	Word string
}

// And is the intersection of two expressions.
type And struct {
	Left, Right Node
}

// Or is the union of two expressions.
type Or struct {
	Left, Right Node
}

// Not is the complement of an expression against the universe.
type Not struct {
	Operand Node
}

// Group is a parenthesized expression.
type Group struct {
	Inner Node
}

func (t *Term) String() string  { return t.Word }
func (n *And) String() string   { return n.Left.String() + " AND " + n.Right.String() }
func (n *Or) String() string    { return n.Left.String() + " OR " + n.Right.String() }
func (n *Not) String() string   { return "NOT " + n.Operand.String() }
func (g *Group) String() string { return "(" + g.Inner.String() + ")" }

func (t *Term) eval(p Postings) *roaring.Bitmap {
	return p.Lookup(t.Word)
}

func (n *And) eval(p Postings) *roaring.Bitmap {
	return roaring.And(n.Left.eval(p), n.Right.eval(p))
}

func (n *Or) eval(p Postings) *roaring.Bitmap {
	return roaring.Or(n.Left.eval(p), n.Right.eval(p))
}

func (n *Not) eval(p Postings) *roaring.Bitmap {
	return roaring.AndNot(p.Universe(), n.Operand.eval(p))
}

func (g *Group) eval(p Postings) *roaring.Bitmap {
	return g.Inner.eval(p)
}
