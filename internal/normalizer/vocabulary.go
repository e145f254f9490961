package normalizer

import (
	"fmt"
	"sort"
	"strings"
)

// Vocabulary partitions known tokens into lemma groups. The lemma -> tokens
// direction is authoritative; the token -> lemma view is derived from it once
// and never mutated. A Vocabulary is immutable after construction.
type Vocabulary struct {
	members map[string][]string
	lemmaOf map[string]string
}

// NewVocabulary builds a Vocabulary from lemma groups. It fails if a token is
// claimed by two lemmas or a lemma has no members.
func NewVocabulary(groups map[string][]string) (*Vocabulary, error) {
	v := &Vocabulary{
		members: make(map[string][]string, len(groups)),
		lemmaOf: make(map[string]string),
	}
	for lemma, tokens := range groups {
		if lemma == "" {
			return nil, fmt.Errorf("empty lemma")
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("lemma %q has no member tokens", lemma)
		}
		set := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if token == "" {
				return nil, fmt.Errorf("lemma %q has an empty member token", lemma)
			}
			if owner, taken := v.lemmaOf[token]; taken && owner != lemma {
				return nil, fmt.Errorf("token %q belongs to both %q and %q", token, owner, lemma)
			}
			v.lemmaOf[token] = lemma
			set[token] = struct{}{}
		}
		sorted := make([]string, 0, len(set))
		for token := range set {
			sorted = append(sorted, token)
		}
		sort.Strings(sorted)
		v.members[lemma] = sorted
	}
	return v, nil
}

// BuildVocabulary groups every distinct token under Lemmatize(token).
func BuildVocabulary(tokens []string) *Vocabulary {
	groups := make(map[string][]string)
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		lemma := Lemmatize(token)
		groups[lemma] = append(groups[lemma], token)
	}
	// Grouping by a function of the token cannot produce overlapping groups.
	v, _ := NewVocabulary(groups)
	return v
}

// Lemma returns the lemma a surface token belongs to.
func (v *Vocabulary) Lemma(token string) (string, bool) {
	lemma, ok := v.lemmaOf[token]
	return lemma, ok
}

// HasLemma reports whether lemma is a known lemma.
func (v *Vocabulary) HasLemma(lemma string) bool {
	_, ok := v.members[lemma]
	return ok
}

// Resolve maps a query word to a known lemma. Lookup order: the word as a
// surface token, the word as a lemma, then the lemma the rule cascade
// assigns to it.
func (v *Vocabulary) Resolve(word string) (string, bool) {
	word = strings.ToLower(word)
	if lemma, ok := v.lemmaOf[word]; ok {
		return lemma, true
	}
	if v.HasLemma(word) {
		return word, true
	}
	if lemma := Lemmatize(word); v.HasLemma(lemma) {
		return lemma, true
	}
	return "", false
}

// Members returns a copy of the sorted member tokens of lemma.
func (v *Vocabulary) Members(lemma string) []string {
	tokens := v.members[lemma]
	out := make([]string, len(tokens))
	copy(out, tokens)
	return out
}

// Lemmas returns every lemma in ascending order.
func (v *Vocabulary) Lemmas() []string {
	lemmas := make([]string, 0, len(v.members))
	for lemma := range v.members {
		lemmas = append(lemmas, lemma)
	}
	sort.Strings(lemmas)
	return lemmas
}

// Tokens returns every known surface token in ascending order.
func (v *Vocabulary) Tokens() []string {
	tokens := make([]string, 0, len(v.lemmaOf))
	for token := range v.lemmaOf {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// Len returns the number of lemmas.
func (v *Vocabulary) Len() int {
	return len(v.members)
}

// TokenCount returns the number of known surface tokens.
func (v *Vocabulary) TokenCount() int {
	return len(v.lemmaOf)
}
