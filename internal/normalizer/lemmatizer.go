package normalizer

import "strings"

var irregularForms = map[string]string{
	"went":    "go",
	"gone":    "go",
	"did":     "do",
	"done":    "do",
	"was":     "be",
	"were":    "be",
	"been":    "be",
	"has":     "have",
	"had":     "have",
	"having":  "have",
	"made":    "make",
	"took":    "take",
	"taken":   "take",
	"saw":     "see",
	"seen":    "see",
	"ran":     "run",
	"bought":  "buy",
	"brought": "bring",
	"thought": "think",
	"better":  "good",
	"best":    "good",
	"worse":   "bad",
	"worst":   "bad",
}

// Lemmatize maps token to its lemma. The rule cascade is re-applied until the
// word stops changing, so Lemmatize(Lemmatize(t)) == Lemmatize(t). Every rule
// either shortens the word or yields an irregular base form that no rule
// matches, which bounds the loop.
func Lemmatize(token string) string {
	word := token
	for {
		next := applyRules(word)
		if next == word {
			return word
		}
		word = next
	}
}

// applyRules is a single pass of the cascade: the first matching rule wins.
func applyRules(word string) string {
	if base, ok := irregularForms[word]; ok {
		return base
	}
	n := len(word)
	switch {
	case strings.HasSuffix(word, "ies") && n > 4:
		return word[:n-3] + "y"
	case strings.HasSuffix(word, "es") && n > 4:
		return word[:n-2]
	case strings.HasSuffix(word, "s") && n > 3:
		return word[:n-1]
	case strings.HasSuffix(word, "ing") && n > 5:
		return undouble(word[:n-3])
	case strings.HasSuffix(word, "ed") && n > 4:
		base := word[:n-2]
		if strings.HasSuffix(base, "i") {
			return base[:len(base)-1] + "y"
		}
		return base
	case strings.HasSuffix(word, "er") && n > 4:
		return undouble(word[:n-2])
	case strings.HasSuffix(word, "est") && n > 5:
		return undouble(word[:n-3])
	}
	return word
}

// undouble removes one copy of a doubled trailing consonant
// (runn -> run, bigg -> big).
func undouble(stem string) string {
	n := len(stem)
	if n < 3 {
		return stem
	}
	last := stem[n-1]
	if last == stem[n-2] && isConsonant(last) {
		return stem[:n-1]
	}
	return stem
}

func isConsonant(c byte) bool {
	if c < 'a' || c > 'z' {
		return false
	}
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	}
	return true
}
