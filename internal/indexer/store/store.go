package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/labinochka/OIP/internal/corpus"
	"github.com/labinochka/OIP/internal/indexer/index"
	apperrors "github.com/labinochka/OIP/pkg/errors"
	"github.com/labinochka/OIP/pkg/logger"
)

// File names inside a generation directory.
const (
	CurrentFile       = "CURRENT"
	LemmasFile        = "lemmas.txt"
	TokensFile        = "tokens.txt"
	InvertedIndexFile = "inverted_index.txt"
	RegistryFile      = "index.txt"
	VectorsDir        = "tfidf"

	generationPrefix = "gen-"
	tmpSuffix        = ".tmp"
)

// Store keeps snapshot generations under one data directory. A generation is
// written to a temporary directory and renamed into place before CURRENT is
// switched to it, so a reader never sees a half-written generation.
type Store struct {
	dataDir string
	keep    int
	workers int
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKeepGenerations sets how many generations survive pruning.
func WithKeepGenerations(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.keep = n
		}
	}
}

// WithIOWorkers bounds how many vector files are read or written at once.
func WithIOWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

func New(dataDir string, opts ...Option) *Store {
	s := &Store{
		dataDir: dataDir,
		keep:    3,
		workers: 8,
		logger:  logger.WithComponent("index-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataDir returns the root directory of the store.
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) generationDir(generation string) string {
	return filepath.Join(s.dataDir, generationPrefix+generation)
}

// Save writes snap as a new generation and makes it current.
func (s *Store) Save(ctx context.Context, snap *index.Snapshot) error {
	generation := snap.Generation()
	if err := corpus.ValidateID(generation); err != nil {
		return fmt.Errorf("invalid generation: %w", err)
	}
	final := s.generationDir(generation)
	if _, err := os.Stat(final); err == nil {
		return fmt.Errorf("generation %s already exists", generation)
	}
	tmp := final + tmpSuffix
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("clearing temp generation: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(tmp, VectorsDir), 0o755); err != nil {
		return fmt.Errorf("creating generation directory: %w", err)
	}
	if err := s.writeGeneration(ctx, tmp, snap); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("renaming generation directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dataDir, CurrentFile), func(w io.Writer) error {
		_, err := io.WriteString(w, generation+"\n")
		return err
	}); err != nil {
		return fmt.Errorf("switching %s: %w", CurrentFile, err)
	}
	s.logger.Info("generation saved", "generation", generation, "dir", final)

	if err := s.prune(generation); err != nil {
		s.logger.Warn("pruning old generations failed", "error", err)
	}
	return nil
}

func (s *Store) writeGeneration(ctx context.Context, dir string, snap *index.Snapshot) error {
	vocab := snap.Vocabulary()
	if err := writeFile(filepath.Join(dir, LemmasFile), func(w io.Writer) error {
		return WriteLemmas(w, vocab)
	}); err != nil {
		return fmt.Errorf("writing lemma table: %w", err)
	}
	if err := writeFile(filepath.Join(dir, TokensFile), func(w io.Writer) error {
		return WriteTokens(w, vocab.Tokens())
	}); err != nil {
		return fmt.Errorf("writing token list: %w", err)
	}
	if err := writeFile(filepath.Join(dir, InvertedIndexFile), func(w io.Writer) error {
		return WriteInvertedIndex(w, snap.Index())
	}); err != nil {
		return fmt.Errorf("writing inverted index: %w", err)
	}
	if err := writeFile(filepath.Join(dir, RegistryFile), func(w io.Writer) error {
		return corpus.WriteRegistry(w, snap.Registry())
	}); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}

	idf := snap.IDFTable()
	vectors := snap.Vectors()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range snap.Docs().IDs() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, VectorsDir, id+".txt")
			if err := writeFile(path, func(w io.Writer) error {
				return WriteVector(w, vectors[id], idf)
			}); err != nil {
				return fmt.Errorf("writing vector for %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Current returns the generation named by CURRENT.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, CurrentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: no %s in %s", apperrors.ErrMissingIndex, CurrentFile, s.dataDir)
		}
		return "", fmt.Errorf("reading %s: %w", CurrentFile, err)
	}
	generation := strings.TrimSpace(string(data))
	if err := corpus.ValidateID(generation); err != nil {
		return "", apperrors.Corruptf("%s: %v", CurrentFile, err)
	}
	return generation, nil
}

// Generations lists complete generations in ascending order.
func (s *Store) Generations() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var gens []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, generationPrefix) || strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		gens = append(gens, strings.TrimPrefix(name, generationPrefix))
	}
	sort.Strings(gens)
	return gens, nil
}

func (s *Store) prune(current string) error {
	gens, err := s.Generations()
	if err != nil {
		return err
	}
	if len(gens) <= s.keep {
		return nil
	}
	var errs []error
	for _, gen := range gens[:len(gens)-s.keep] {
		if gen == current {
			continue
		}
		if err := os.RemoveAll(s.generationDir(gen)); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("generation pruned", "generation", gen)
	}
	return errors.Join(errs...)
}

// Load reads the current generation.
func (s *Store) Load(ctx context.Context) (*index.Snapshot, error) {
	generation, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.LoadGeneration(ctx, generation)
}

// LoadGeneration reads one generation. Any missing file, malformed line or
// cross-file inconsistency fails the whole load; no partial snapshot is ever
// returned.
func (s *Store) LoadGeneration(ctx context.Context, generation string) (*index.Snapshot, error) {
	dir := s.generationDir(generation)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: generation %s not found in %s", apperrors.ErrMissingIndex, generation, s.dataDir)
	}

	vocabFile := filepath.Join(dir, LemmasFile)
	vocab, err := readFile(vocabFile, ReadLemmas)
	if err != nil {
		return nil, apperrors.Corruptf("%s: %v", vocabFile, err)
	}
	tokens, err := readFile(filepath.Join(dir, TokensFile), ReadTokens)
	if err != nil {
		return nil, apperrors.Corruptf("%s: %v", TokensFile, err)
	}
	slices.Sort(tokens)
	if want := vocab.Tokens(); !slices.Equal(tokens, want) {
		return nil, apperrors.Corruptf("%s: %d tokens do not match the %d tokens of the lemma table",
			TokensFile, len(tokens), len(want))
	}

	registry, err := readFile(filepath.Join(dir, RegistryFile), corpus.ReadRegistry)
	if err != nil {
		return nil, apperrors.Corruptf("%s: %v", RegistryFile, err)
	}
	docs, err := index.NewDocTable(registry.IDs())
	if err != nil {
		return nil, apperrors.Corruptf("%s: %v", RegistryFile, err)
	}
	entries, err := readFile(filepath.Join(dir, InvertedIndexFile), ReadInvertedIndex)
	if err != nil {
		return nil, apperrors.Corruptf("%s: %v", InvertedIndexFile, err)
	}
	ix, err := index.FromEntries(docs, entries)
	if err != nil {
		return nil, apperrors.Corruptf("%s: %v", InvertedIndexFile, err)
	}

	vectors, idf, err := s.loadVectors(ctx, filepath.Join(dir, VectorsDir), docs)
	if err != nil {
		return nil, err
	}

	snap, err := index.NewSnapshot(index.SnapshotParams{
		Generation: generation,
		Vocabulary: vocab,
		Index:      ix,
		IDF:        idf,
		Vectors:    vectors,
		Registry:   registry,
	})
	if err != nil {
		return nil, apperrors.Corruptf("generation %s: %v", generation, err)
	}
	s.logger.Info("generation loaded",
		"generation", generation,
		"documents", docs.Len(),
		"lemmas", ix.Len(),
	)
	return snap, nil
}

func (s *Store) loadVectors(ctx context.Context, dir string, docs *index.DocTable) (map[string]index.Vector, map[string]float64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, apperrors.Corruptf("reading %s: %v", VectorsDir, err)
	}
	onDisk := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".txt")
		if !ok || e.IsDir() {
			return nil, nil, apperrors.Corruptf("%s: unexpected entry %q", VectorsDir, e.Name())
		}
		if _, known := docs.Ordinal(id); !known {
			return nil, nil, apperrors.Corruptf("%s: vector for unregistered document %q", VectorsDir, id)
		}
		onDisk[id] = struct{}{}
	}

	var (
		mu      sync.Mutex
		vectors = make(map[string]index.Vector, docs.Len())
		idf     = make(map[string]float64)
	)
	ids := docs.IDs()
	for _, id := range ids {
		if _, ok := onDisk[id]; !ok {
			return nil, nil, apperrors.Corruptf("%s: no vector for document %q", VectorsDir, id)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lines, err := readFile(filepath.Join(dir, id+".txt"), ReadVector)
			if err != nil {
				return apperrors.Corruptf("%s/%s.txt: %v", VectorsDir, id, err)
			}
			vec := make(index.Vector, len(lines))
			for _, l := range lines {
				vec[l.Lemma] = l.TFIDF
			}
			mu.Lock()
			defer mu.Unlock()
			for _, l := range lines {
				if prev, seen := idf[l.Lemma]; seen && prev != l.IDF {
					return apperrors.Corruptf("lemma %q has idf %s in %s.txt but %s elsewhere",
						l.Lemma, formatFloat(l.IDF), id, formatFloat(prev))
				}
				idf[l.Lemma] = l.IDF
			}
			vectors[id] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vectors, idf, nil
}

func writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return f.Close()
}

func writeFileAtomic(path string, fn func(w io.Writer) error) error {
	tmp := path + tmpSuffix
	if err := writeFile(tmp, fn); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readFile[T any](path string, parse func(r io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return parse(bufio.NewReader(f))
}
