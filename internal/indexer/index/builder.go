package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/labinochka/OIP/internal/corpus"
	"github.com/labinochka/OIP/internal/normalizer"
	"github.com/labinochka/OIP/pkg/logger"
)

// Builder turns a corpus into a Snapshot in one pass. Documents are scanned
// on an ants worker pool and folded into a MemoryIndex.
type Builder struct {
	workers int
	logger  *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers sets the size of the scanning pool.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithLogger overrides the builder's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		workers: 4,
		logger:  logger.WithComponent("index-builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build indexes every document of c. A token contributes to the lemma vocab
// maps it to; tokens without a lemma are skipped but still count towards the
// document's token total.
func (b *Builder) Build(ctx context.Context, c *corpus.Corpus, vocab *normalizer.Vocabulary, generation string) (*Snapshot, error) {
	start := time.Now()
	documents := c.Documents()
	ids := make([]string, len(documents))
	for i, doc := range documents {
		ids[i] = doc.ID
	}
	docs, err := NewDocTable(ids)
	if err != nil {
		return nil, fmt.Errorf("building document table: %w", err)
	}

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return nil, fmt.Errorf("creating build pool: %w", err)
	}
	defer pool.Release()

	mem := NewMemoryIndex(docs)
	var wg sync.WaitGroup
	for _, doc := range documents {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		ord, _ := docs.Ordinal(doc.ID)
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			mem.AddDocument(ord, CountLemmas(doc.Tokens, vocab))
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submitting document %s: %w", doc.ID, err)
		}
	}
	wg.Wait()

	ix, perDoc := mem.Freeze()
	n := docs.Len()
	idf := make(map[string]float64, ix.Len())
	for lemma, bm := range ix.postings {
		idf[lemma] = IDF(n, int(bm.GetCardinality()))
	}
	vectors := make(map[string]Vector, n)
	stats := make(map[string]DocStats, n)
	for ord, st := range perDoc {
		id := docs.ID(uint32(ord))
		vec := make(Vector, len(st.Lemmas))
		for lemma, count := range st.Lemmas {
			vec[lemma] = TF(count, st.Total) * idf[lemma]
		}
		vectors[id] = vec
		stats[id] = st
	}

	snap, err := NewSnapshot(SnapshotParams{
		Generation: generation,
		Vocabulary: vocab,
		Index:      ix,
		IDF:        idf,
		Vectors:    vectors,
		Registry:   c.Registry(),
		Stats:      stats,
	})
	if err != nil {
		return nil, fmt.Errorf("assembling snapshot: %w", err)
	}
	b.logger.Info("index built",
		"generation", generation,
		"documents", n,
		"lemmas", ix.Len(),
		"postings", ix.PostingCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

// CountLemmas sums the raw counts of each lemma's member tokens.
func CountLemmas(tokens []string, vocab *normalizer.Vocabulary) DocStats {
	st := DocStats{Total: len(tokens), Lemmas: make(map[string]int)}
	for _, token := range tokens {
		if lemma, ok := vocab.Lemma(token); ok {
			st.Lemmas[lemma]++
		}
	}
	return st
}
