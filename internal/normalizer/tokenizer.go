// Package normalizer turns cleaned text into tokens and maps tokens onto
// canonical lemmas. Tokenize lower-cases input, keeps maximal runs of Latin
// letters of at least MinTokenLength characters and drops stop-words.
// Lemmatize applies a fixed, ordered suffix-rule cascade.
package normalizer

import (
	"strings"
)

// MinTokenLength is the shortest letter run kept as a token.
const MinTokenLength = 3

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"if": {}, "while": {}, "of": {}, "at": {}, "by": {}, "for": {},
	"with": {}, "about": {}, "against": {}, "between": {}, "into": {},
	"through": {}, "during": {}, "before": {}, "after": {}, "above": {},
	"below": {}, "to": {}, "from": {}, "up": {}, "down": {}, "in": {},
	"out": {}, "on": {}, "off": {}, "over": {}, "under": {}, "again": {},
	"further": {}, "then": {}, "once": {}, "here": {}, "there": {},
	"all": {}, "any": {}, "both": {}, "each": {}, "few": {}, "more": {},
	"most": {}, "other": {}, "some": {}, "such": {}, "no": {}, "nor": {},
	"not": {}, "only": {}, "own": {}, "same": {}, "so": {}, "than": {},
	"too": {}, "very": {}, "can": {}, "will": {}, "just": {},
}

// IsStopWord reports whether word belongs to the closed stop-word set.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Tokenize breaks text into an ordered slice of lower-cased tokens with
// stop-words and short runs removed. The same function serves documents and
// queries.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := make([]string, 0, len(text)/6)
	start := -1
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c >= 'a' && c <= 'z' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = appendToken(tokens, text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = appendToken(tokens, text[start:])
	}
	return tokens
}

func appendToken(tokens []string, word string) []string {
	if len(word) < MinTokenLength {
		return tokens
	}
	if IsStopWord(word) {
		return tokens
	}
	return append(tokens, word)
}

// Frequencies counts occurrences of each token.
func Frequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, token := range tokens {
		freq[token]++
	}
	return freq
}
