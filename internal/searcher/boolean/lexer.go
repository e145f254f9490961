// Package boolean parses AND/OR/NOT queries with parentheses into an
// expression tree and evaluates it over posting bitmaps. Precedence from
// tightest to loosest: parentheses, NOT, AND, OR. Binary operators associate
// to the left. NOT is the complement against the document universe.
package boolean

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/labinochka/OIP/pkg/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokWord:
		return "term"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// ParseError reports a malformed query. It matches errors.ErrParse.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return apperrors.ErrParse
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lex splits a query into words, keywords and parentheses. Any other
// character only separates words.
func lex(query string) []token {
	var tokens []token
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := query[start:end]
		kind := tokWord
		switch strings.ToUpper(word) {
		case "AND":
			kind = tokAnd
		case "OR":
			kind = tokOr
		case "NOT":
			kind = tokNot
		}
		tokens = append(tokens, token{kind: kind, text: strings.ToLower(word), pos: start})
		start = -1
	}
	for i, r := range query {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		switch r {
		case '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
		case ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
		}
	}
	flush(len(query))
	return append(tokens, token{kind: tokEOF, pos: len(query)})
}
