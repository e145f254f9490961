// Package cache keeps search results in Redis. Keys are scoped by snapshot
// generation, so a swap makes every older entry unreachable without an
// explicit flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/labinochka/OIP/internal/normalizer"
	"github.com/labinochka/OIP/internal/searcher/boolean"
	"github.com/labinochka/OIP/internal/searcher/executor"
	"github.com/labinochka/OIP/pkg/logger"
	"github.com/labinochka/OIP/pkg/metrics"
	"github.com/labinochka/OIP/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the key/value store behind the cache. *redis.Client from
// pkg/redis implements it.
type Backend interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushPrefix(ctx context.Context, prefix string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	data, found, err := c.backend.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Debug("cache bypassed", "key", key, "error", err)
		} else {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for (kind, generation, query) or
// runs compute once per key across concurrent callers. Failed computations
// are not cached. The bool reports a cache hit. Equivalent queries share a
// key, so the returned result always carries the caller's query text.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	kind, generation, query string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := BuildKey(kind, generation, query)
	if result, ok := c.Get(ctx, key); ok {
		return withQuery(result, query), true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return withQuery(val.(*executor.SearchResult), query), false, nil
}

// withQuery returns result labelled with query. Shared results are copied,
// never modified.
func withQuery(result *executor.SearchResult, query string) *executor.SearchResult {
	if result.Query == query {
		return result
	}
	out := *result
	out.Query = query
	return &out
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushPrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes a canonical form of query. Boolean queries are keyed by
// their parsed expression; vector queries by their sorted tokens, since
// token order does not change the query vector.
func BuildKey(kind, generation, query string) string {
	raw := fmt.Sprintf("%s:%s:%s", kind, generation, normalizeQuery(kind, query))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, generation, hash[:16])
}

func normalizeQuery(kind, query string) string {
	if kind == executor.KindBoolean {
		if node, err := boolean.Parse(query); err == nil {
			return node.String()
		}
		return strings.ToLower(strings.TrimSpace(query))
	}
	tokens := normalizer.Tokenize(query)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
