package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "basic text",
			input:    "The quick brown fox jumps over the lazy dog",
			expected: []string{"quick", "brown", "fox", "jumps", "lazy", "dog"},
		},
		{
			name:     "punctuation and case",
			input:    "Hello, WORLD! Search-Engines rock.",
			expected: []string{"hello", "world", "search", "engines", "rock"},
		},
		{
			name:     "digits split runs",
			input:    "covid19 abc123def web2py",
			expected: []string{"covid", "abc", "def", "web"},
		},
		{
			name:     "short runs dropped",
			input:    "an ox is at it go",
			expected: []string{},
		},
		{
			name:     "only stop words",
			input:    "and the with very just",
			expected: []string{},
		},
		{
			name:     "non latin letters break runs",
			input:    "café naïve",
			expected: []string{"caf"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}

func TestTokenizeKeepsOrderAndDuplicates(t *testing.T) {
	assert.Equal(t, []string{"cat", "dog", "cat"}, Tokenize("cat dog cat"))
}

func TestLemmatizeRules(t *testing.T) {
	tests := []struct {
		token string
		lemma string
	}{
		{"went", "go"},
		{"better", "good"},
		{"worst", "bad"},
		{"brought", "bring"},
		{"companies", "company"},
		{"boxes", "box"},
		{"cats", "cat"},
		{"running", "run"},
		{"seeing", "see"},
		{"studied", "study"},
		{"played", "play"},
		{"bigger", "big"},
		{"biggest", "big"},
		{"walkers", "walk"},
		{"bees", "bee"},
		{"dog", "dog"},
		{"ties", "tie"},
		{"was", "be"},
		// Repeating the cascade strips trailing s/es until none applies.
		{"classes", "cla"},
		{"class", "cla"},
		{"process", "proc"},
		{"businesses", "busin"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.lemma, Lemmatize(tt.token))
		})
	}
}

func TestApplyRulesSinglePass(t *testing.T) {
	assert.Equal(t, "walker", applyRules("walkers"))
	assert.Equal(t, "walk", applyRules("walker"))
	assert.Equal(t, "run", applyRules("running"))
	assert.Equal(t, "cat", applyRules("cat"))
}

func TestLemmatizeIdempotent(t *testing.T) {
	words := []string{
		"classes", "glasses", "running", "companies", "studies", "walkers",
		"stresses", "biggest", "happiest", "fastest", "dresses", "cities",
		"kissed", "hopping", "stopped", "thinner", "better", "having",
		"buses", "series", "process", "processes", "engineering", "analyses",
	}
	for _, w := range words {
		once := Lemmatize(w)
		assert.Equal(t, once, Lemmatize(once), "lemmatize(%q)", w)
	}
}

func TestBuildVocabularyPartition(t *testing.T) {
	v := BuildVocabulary([]string{"cats", "cat", "running", "run", "dog", "cats"})

	assert.Equal(t, []string{"cat", "dog", "run"}, v.Lemmas())
	assert.Equal(t, []string{"cat", "cats"}, v.Members("cat"))
	assert.Equal(t, []string{"run", "running"}, v.Members("run"))
	assert.Equal(t, 5, v.TokenCount())

	for _, token := range v.Tokens() {
		lemma, ok := v.Lemma(token)
		require.True(t, ok)
		assert.Contains(t, v.Members(lemma), token)
	}
}

func TestNewVocabularyRejectsOverlap(t *testing.T) {
	_, err := NewVocabulary(map[string][]string{
		"run": {"run", "running"},
		"ran": {"running"},
	})
	assert.Error(t, err)

	_, err = NewVocabulary(map[string][]string{"cat": {}})
	assert.Error(t, err)
}

func TestVocabularyMembersIsACopy(t *testing.T) {
	v := BuildVocabulary([]string{"cats", "cat"})
	members := v.Members("cat")
	members[0] = "mutated"
	assert.Equal(t, []string{"cat", "cats"}, v.Members("cat"))
}

func TestResolve(t *testing.T) {
	v, err := NewVocabulary(map[string][]string{
		"cat":   {"cats"},
		"study": {"studied", "studies"},
	})
	require.NoError(t, err)

	tests := []struct {
		word  string
		lemma string
		ok    bool
	}{
		{"cats", "cat", true},
		{"CATS", "cat", true},
		{"cat", "cat", true},
		{"studying", "study", true},
		{"studied", "study", true},
		{"study", "study", true},
		{"unknown", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			lemma, ok := v.Resolve(tt.word)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.lemma, lemma)
		})
	}
}

func TestResolveFallsBackToRules(t *testing.T) {
	v, err := NewVocabulary(map[string][]string{"dog": {"dog"}})
	require.NoError(t, err)
	lemma, ok := v.Resolve("dogs")
	assert.True(t, ok)
	assert.Equal(t, "dog", lemma)
}

func BenchmarkTokenize(b *testing.B) {
	text := "Distributed search engines index cleaned documents and answer boolean and ranked queries over them quickly"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
