package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/searcher/boolean"
	"github.com/labinochka/OIP/internal/searcher/vector"
	apperrors "github.com/labinochka/OIP/pkg/errors"
	"github.com/labinochka/OIP/pkg/logger"
	"github.com/labinochka/OIP/pkg/metrics"
)

// Query kinds.
const (
	KindBoolean = "boolean"
	KindVector  = "vector"
)

// Result is one matching document. Score is only set for vector queries.
type Result struct {
	DocID string  `json:"doc_id"`
	URL   string  `json:"url"`
	Score float64 `json:"score,omitempty"`
}

// SearchResult is the full, untruncated answer to a query.
type SearchResult struct {
	Query      string   `json:"query"`
	Kind       string   `json:"kind"`
	Generation string   `json:"generation"`
	TotalHits  int      `json:"total_hits"`
	Results    []Result `json:"results"`
}

// Loader produces a complete snapshot, typically from the index store.
type Loader interface {
	Load(ctx context.Context) (*index.Snapshot, error)
}

type state struct {
	snap   *index.Snapshot
	ranker *vector.Ranker
}

// Executor serves queries against the current snapshot. A query reads the
// snapshot pointer once and runs entirely against that snapshot, so a
// concurrent Swap is never observed half-way.
type Executor struct {
	current  atomic.Pointer[state]
	loader   Loader
	metrics  *metrics.Metrics
	reloadMu sync.Mutex
	logger   *slog.Logger
}

// New creates an Executor with no snapshot. m may be nil.
func New(loader Loader, m *metrics.Metrics) *Executor {
	return &Executor{
		loader:  loader,
		metrics: m,
		logger:  logger.WithComponent("query-executor"),
	}
}

// Swap installs snap as the current snapshot.
func (e *Executor) Swap(snap *index.Snapshot) {
	st := &state{snap: snap, ranker: vector.NewRanker(snap.Vectors())}
	old := e.current.Swap(st)
	if e.metrics != nil {
		e.metrics.SnapshotDocuments.Set(float64(snap.DocumentCount()))
		e.metrics.SnapshotLemmas.Set(float64(snap.Index().Len()))
	}
	prev := ""
	if old != nil {
		prev = old.snap.Generation()
	}
	e.logger.Info("snapshot swapped", "generation", snap.Generation(), "previous", prev, "documents", snap.DocumentCount())
}

// Reload loads a snapshot through the loader and swaps it in. On failure the
// current snapshot keeps serving.
func (e *Executor) Reload(ctx context.Context) (index.Summary, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	snap, err := e.loader.Load(ctx)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SnapshotSwapsTotal.WithLabelValues("error").Inc()
		}
		e.logger.Error("snapshot reload failed", "error", err, "serving", e.Generation())
		return index.Summary{}, fmt.Errorf("reloading snapshot: %w", err)
	}
	e.Swap(snap)
	if e.metrics != nil {
		e.metrics.SnapshotSwapsTotal.WithLabelValues("success").Inc()
	}
	return snap.Summary(), nil
}

// Snapshot returns the current snapshot or nil.
func (e *Executor) Snapshot() *index.Snapshot {
	if st := e.current.Load(); st != nil {
		return st.snap
	}
	return nil
}

// Ready reports whether a snapshot is loaded.
func (e *Executor) Ready() bool {
	return e.current.Load() != nil
}

// Generation returns the current generation or "".
func (e *Executor) Generation() string {
	if snap := e.Snapshot(); snap != nil {
		return snap.Generation()
	}
	return ""
}

// Info summarizes the current snapshot.
func (e *Executor) Info() (index.Summary, error) {
	snap := e.Snapshot()
	if snap == nil {
		return index.Summary{}, apperrors.ErrNotReady
	}
	return snap.Summary(), nil
}

// Boolean evaluates a boolean query. Results are in ascending id order. A
// malformed query returns an empty result together with a *boolean.ParseError.
func (e *Executor) Boolean(ctx context.Context, query string) (*SearchResult, error) {
	st, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result := &SearchResult{Query: query, Kind: KindBoolean, Generation: st.snap.Generation(), Results: []Result{}}

	ids, err := boolean.Search(st.snap, query)
	if err != nil {
		e.observe(KindBoolean, resultType(err, 0), start, 0)
		e.logger.Warn("boolean query rejected", "query", query, "error", err)
		return result, err
	}
	for _, id := range ids {
		result.Results = append(result.Results, Result{DocID: id, URL: st.snap.URL(id)})
	}
	result.TotalHits = len(result.Results)
	e.observe(KindBoolean, resultType(nil, result.TotalHits), start, result.TotalHits)
	e.logger.Info("query executed",
		"kind", KindBoolean,
		"query", query,
		"hits", result.TotalHits,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Vector ranks every document against a free-text query. All documents with
// a positive score are returned; truncation is left to the caller.
func (e *Executor) Vector(ctx context.Context, query string) (*SearchResult, error) {
	st, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	qv := vector.BuildQueryVector(query, st.snap.Vocabulary(), st.snap.IDFTable())
	hits := st.ranker.Rank(qv)

	result := &SearchResult{
		Query:      query,
		Kind:       KindVector,
		Generation: st.snap.Generation(),
		TotalHits:  len(hits),
		Results:    make([]Result, 0, len(hits)),
	}
	for _, h := range hits {
		result.Results = append(result.Results, Result{DocID: h.DocID, URL: st.snap.URL(h.DocID), Score: h.Score})
	}
	e.observe(KindVector, resultType(nil, result.TotalHits), start, result.TotalHits)
	e.logger.Info("query executed",
		"kind", KindVector,
		"query", query,
		"query_lemmas", len(qv),
		"hits", result.TotalHits,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Executor) acquire(ctx context.Context) (*state, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	st := e.current.Load()
	if st == nil {
		return nil, apperrors.ErrNotReady
	}
	return st, nil
}

func (e *Executor) observe(kind, result string, start time.Time, hits int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(kind, result).Inc()
	e.metrics.SearchLatency.WithLabelValues(kind, "miss").Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.WithLabelValues(kind).Observe(float64(hits))
}

func resultType(err error, hits int) string {
	switch {
	case errors.Is(err, apperrors.ErrParse):
		return "parse_error"
	case err != nil:
		return "error"
	case hits == 0:
		return "zero_result"
	default:
		return "hit"
	}
}
