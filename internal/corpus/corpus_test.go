package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinochka/OIP/pkg/config"
	apperrors "github.com/labinochka/OIP/pkg/errors"
)

func TestNewSortsAndValidates(t *testing.T) {
	reg := NewRegistry(map[string]string{"2": "http://b", "1": "http://a"})
	c, err := New([]Document{
		NewDocument("2", "second document text"),
		NewDocument("1", "first document text"),
	}, reg)
	require.NoError(t, err)

	require.Equal(t, 2, c.Len())
	assert.Equal(t, "1", c.Documents()[0].ID)
	assert.Equal(t, "2", c.Documents()[1].ID)
	assert.Equal(t, []string{"document", "first", "second", "text"}, c.Tokens())
}

func TestNewRejectsInconsistentRegistry(t *testing.T) {
	tests := []struct {
		name string
		docs []Document
		urls map[string]string
		want string
	}{
		{
			name: "document without url",
			docs: []Document{{ID: "1"}, {ID: "2"}},
			urls: map[string]string{"1": "u"},
			want: `document "2" has no registry entry`,
		},
		{
			name: "url without document",
			docs: []Document{{ID: "1"}},
			urls: map[string]string{"1": "u", "3": "v"},
			want: `registry entry "3" has no document`,
		},
		{
			name: "duplicate id",
			docs: []Document{{ID: "1"}, {ID: "1"}},
			urls: map[string]string{"1": "u"},
			want: `duplicate document id "1"`,
		},
		{
			name: "empty url",
			docs: []Document{{ID: "1"}},
			urls: map[string]string{"1": ""},
			want: `registry entry "1": empty url`,
		},
		{
			name: "url with whitespace",
			docs: []Document{{ID: "1"}},
			urls: map[string]string{"1": "http://example.com/a page"},
			want: "contains whitespace",
		},
		{
			name: "path separator",
			docs: []Document{{ID: "a/b"}},
			urls: map[string]string{},
			want: "path separator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.docs, NewRegistry(tt.urls))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidCorpus)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewCopiesTokens(t *testing.T) {
	tokens := []string{"alpha", "beta"}
	c, err := New([]Document{{ID: "1", Tokens: tokens}}, NewRegistry(map[string]string{"1": "u"}))
	require.NoError(t, err)
	tokens[0] = "mutated"
	assert.Equal(t, "alpha", c.Documents()[0].Tokens[0])
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry(map[string]string{"10": "http://x/10", "2": "http://x/2"})
	var sb strings.Builder
	require.NoError(t, WriteRegistry(&sb, reg))
	assert.Equal(t, "10 http://x/10\n2 http://x/2\n", sb.String())

	back, err := ReadRegistry(strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.True(t, reg.Equal(back))
}

func TestWriteRegistryRejectsUnreadableURL(t *testing.T) {
	var sb strings.Builder
	err := WriteRegistry(&sb, NewRegistry(map[string]string{"1": "http://x/a b"}))
	assert.ErrorContains(t, err, "contains whitespace")
}

func TestReadRegistryErrors(t *testing.T) {
	_, err := ReadRegistry(strings.NewReader("1 http://a extra\n"))
	assert.Error(t, err)

	_, err = ReadRegistry(strings.NewReader("1 http://a\n1 http://b\n"))
	assert.Error(t, err)

	reg, err := ReadRegistry(strings.NewReader("\n1 http://a\n\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestExtractText(t *testing.T) {
	page := `<html><head><title>Search Engines</title><style>body{color:red}</style></head>
<body><h1>Inverted indexes</h1><script>var hidden = "javascript";</script>
<p>Boolean <b>retrieval</b> works.</p></body></html>`
	text, err := ExtractText(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Search Engines Inverted indexes Boolean retrieval works.", text)
	assert.NotContains(t, text, "javascript")
}

func TestDirSourceLoad(t *testing.T) {
	dir := t.TempDir()
	pages := filepath.Join(dir, "pages")
	require.NoError(t, os.Mkdir(pages, 0o755))
	registry := filepath.Join(dir, "index.txt")

	require.NoError(t, os.WriteFile(registry, []byte("1 http://a\n2 http://b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "1.txt"), []byte("Cats chase mice"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "2.html"),
		[]byte("<html><body><p>Dogs chase cats</p><script>ignored()</script></body></html>"), 0o644))

	c, err := NewDirSource(pages, registry, 2).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"cats", "chase", "mice"}, c.Documents()[0].Tokens)
	assert.Equal(t, []string{"dogs", "chase", "cats"}, c.Documents()[1].Tokens)

	url, ok := c.Registry().URL("2")
	assert.True(t, ok)
	assert.Equal(t, "http://b", url)
}

func TestDirSourceMissingPage(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "index.txt")
	require.NoError(t, os.WriteFile(registry, []byte("1 http://a\n"), 0o644))

	_, err := NewDirSource(dir, registry, 1).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no page for document "1"`)
}

func TestNewPostgresSourceRejectsBadTable(t *testing.T) {
	_, err := NewPostgresSource(nil, "documents; DROP TABLE x")
	assert.Error(t, err)

	_, err = NewPostgresSource(nil, "public.documents")
	assert.NoError(t, err)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	src, closeFn, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &DirSource{}, src)
	assert.NoError(t, closeFn())

	cfg.Corpus.Source = "s3"
	_, closeFn, err = Open(context.Background(), cfg)
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
