// Package handler exposes the query executor over HTTP as JSON.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/searcher/boolean"
	"github.com/labinochka/OIP/internal/searcher/cache"
	"github.com/labinochka/OIP/internal/searcher/executor"
	apperrors "github.com/labinochka/OIP/pkg/errors"
	"github.com/labinochka/OIP/pkg/logger"
)

// SearchExecutor is the part of *executor.Executor the handlers use.
type SearchExecutor interface {
	Boolean(ctx context.Context, query string) (*executor.SearchResult, error)
	Vector(ctx context.Context, query string) (*executor.SearchResult, error)
	Info() (index.Summary, error)
	Reload(ctx context.Context) (index.Summary, error)
	Generation() string
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a Handler. queryCache may be nil to disable caching.
func New(exec SearchExecutor, queryCache *cache.QueryCache, defaultLimit, maxResults int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxResults < defaultLimit {
		maxResults = defaultLimit
	}
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       logger.WithComponent("search-handler"),
	}
}

// Routes mounts the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search/boolean", h.BooleanSearch)
		r.Get("/search/vector", h.VectorSearch)
		r.Get("/index", h.IndexInfo)
		r.Post("/index/reload", h.Reload)
		r.Get("/cache/stats", h.CacheStats)
		r.Post("/cache/invalidate", h.CacheInvalidate)
	})
}

// BooleanSearch answers GET /api/v1/search/boolean?q=. Every matching
// document is returned in ascending id order unless limit is given.
func (h *Handler) BooleanSearch(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, executor.KindBoolean, 0, h.executor.Boolean)
}

// VectorSearch answers GET /api/v1/search/vector?q=&limit=. Results are
// ranked by score and truncated to limit.
func (h *Handler) VectorSearch(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, executor.KindVector, h.defaultLimit, h.executor.Vector)
}

func (h *Handler) search(
	w http.ResponseWriter,
	r *http.Request,
	kind string,
	defaultLimit int,
	run func(context.Context, string) (*executor.SearchResult, error),
) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, limit, err := h.params(r, defaultLimit)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, kind, h.executor.Generation(), query, func() (*executor.SearchResult, error) {
			return run(ctx, query)
		})
	} else {
		result, err = run(ctx, query)
	}
	if err != nil {
		var perr *boolean.ParseError
		if errors.As(err, &perr) {
			log.Warn("malformed query", "kind", kind, "query", query, "error", err)
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": err.Error(),
				"parse_error": map[string]any{
					"position": perr.Pos,
					"message":  perr.Msg,
				},
			})
			return
		}
		log.Error("search execution failed", "kind", kind, "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed: "+err.Error())
		return
	}

	result = truncate(result, limit)
	log.Info("search completed",
		"kind", kind,
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// params reads q and limit. A limit above maxResults is clamped.
func (h *Handler) params(r *http.Request, defaultLimit int) (string, int, error) {
	query := r.URL.Query().Get("q")
	if query == "" {
		return "", 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return "", 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit %q must be a positive integer", raw)
		}
		limit = min(parsed, h.maxResults)
	}
	return query, limit, nil
}

// truncate returns a shallow copy holding at most limit results. A limit of
// zero keeps everything. The input may be shared with other requests and is
// never modified.
func truncate(result *executor.SearchResult, limit int) *executor.SearchResult {
	if limit <= 0 || len(result.Results) <= limit {
		return result
	}
	out := *result
	out.Results = result.Results[:limit:limit]
	return &out
}

// IndexInfo answers GET /api/v1/index.
func (h *Handler) IndexInfo(w http.ResponseWriter, r *http.Request) {
	summary, err := h.executor.Info()
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// Reload answers POST /api/v1/index/reload. The cache is flushed after a
// successful swap even though generation-scoped keys would already miss.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	summary, err := h.executor.Reload(r.Context())
	if err != nil {
		log.Error("index reload failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			log.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	log.Info("index reloaded", "generation", summary.Generation, "documents", summary.Documents)
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeAppError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError answers with the status err maps to. An AppError carries
// its own client-facing message.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, apperrors.HTTPStatusCode(err), message)
}
