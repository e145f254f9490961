// Package corpus holds the documents and the document-id -> URL registry that
// an index is built from. A Corpus is assembled once, validated, and never
// mutated afterwards.
package corpus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"

	"github.com/labinochka/OIP/internal/normalizer"
	apperrors "github.com/labinochka/OIP/pkg/errors"
)

// Document is an immutable (id, tokens) record.
type Document struct {
	ID     string
	Tokens []string
}

// NewDocument tokenizes cleaned plaintext into a Document.
func NewDocument(id string, text string) Document {
	return Document{ID: id, Tokens: normalizer.Tokenize(text)}
}

// Source produces a complete corpus. Implementations read from a directory
// of pages or from a database table.
type Source interface {
	Load(ctx context.Context) (*Corpus, error)
}

// Corpus is the validated set of documents plus their registry, ordered by
// ascending document id.
type Corpus struct {
	docs     []Document
	registry *Registry
}

// New validates docs against registry and returns a Corpus. Every document
// must have exactly one registry entry and every registry entry must have a
// document.
func New(docs []Document, registry *Registry) (*Corpus, error) {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	var errs error
	seen := make(map[string]struct{}, len(docs))
	sorted := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if err := ValidateID(doc.ID); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			errs = multierror.Append(errs, fmt.Errorf("duplicate document id %q", doc.ID))
			continue
		}
		seen[doc.ID] = struct{}{}
		if _, ok := registry.URL(doc.ID); !ok {
			errs = multierror.Append(errs, fmt.Errorf("document %q has no registry entry", doc.ID))
		}
		tokens := make([]string, len(doc.Tokens))
		copy(tokens, doc.Tokens)
		sorted = append(sorted, Document{ID: doc.ID, Tokens: tokens})
	}
	for _, id := range registry.IDs() {
		if _, ok := seen[id]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("registry entry %q has no document", id))
		}
		url, _ := registry.URL(id)
		if err := ValidateURL(url); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("registry entry %q: %w", id, err))
		}
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidCorpus, errs)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	return &Corpus{docs: sorted, registry: registry}, nil
}

// Documents returns the documents in ascending id order. The slice must not
// be modified.
func (c *Corpus) Documents() []Document {
	return c.docs
}

// Registry returns the id -> URL registry.
func (c *Corpus) Registry() *Registry {
	return c.registry
}

// Len returns the number of documents.
func (c *Corpus) Len() int {
	return len(c.docs)
}

// Tokens returns every distinct token observed in the corpus, sorted.
func (c *Corpus) Tokens() []string {
	set := make(map[string]struct{})
	for _, doc := range c.docs {
		for _, token := range doc.Tokens {
			set[token] = struct{}{}
		}
	}
	tokens := make([]string, 0, len(set))
	for token := range set {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// ValidateURL checks that url fits in a single registry field.
func ValidateURL(url string) error {
	if url == "" {
		return fmt.Errorf("empty url")
	}
	for _, r := range url {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("url %q contains whitespace", url)
		}
	}
	return nil
}

// ValidateID checks that id can be used as a whitespace-separated field and
// as a file name.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty document id")
	}
	if id == "." || id == ".." {
		return fmt.Errorf("invalid document id %q", id)
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("document id %q contains a path separator", id)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("document id %q contains whitespace", id)
		}
	}
	return nil
}
