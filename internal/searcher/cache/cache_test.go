package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labinochka/OIP/internal/searcher/executor"
	"github.com/labinochka/OIP/pkg/resilience"
)

type memBackend struct {
	mu      sync.Mutex
	data    map[string][]byte
	fail    bool
	lookups int
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.fail {
		return nil, false, errors.New("connection refused")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) FlushPrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestBuildKeyCanonicalizes(t *testing.T) {
	assert.Equal(t,
		BuildKey(executor.KindBoolean, "g1", "cats AND dogs"),
		BuildKey(executor.KindBoolean, "g1", "  CATS and   dogs"))
	assert.NotEqual(t,
		BuildKey(executor.KindBoolean, "g1", "cats AND dogs"),
		BuildKey(executor.KindBoolean, "g1", "cats OR dogs"))
	assert.Equal(t,
		BuildKey(executor.KindVector, "g1", "dogs chasing cats"),
		BuildKey(executor.KindVector, "g1", "cats, dogs the chasing"))
	assert.NotEqual(t,
		BuildKey(executor.KindVector, "g1", "cats"),
		BuildKey(executor.KindVector, "g2", "cats"))
	assert.NotEqual(t,
		BuildKey(executor.KindVector, "g1", "cats"),
		BuildKey(executor.KindBoolean, "g1", "cats"))
	assert.True(t, strings.HasPrefix(BuildKey(executor.KindVector, "g1", "cats"), "search:g1:"))
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return &executor.SearchResult{Query: "cats", Kind: executor.KindVector, TotalHits: 1,
			Results: []executor.Result{{DocID: "1", URL: "u", Score: 0.5}}}, nil
	}

	res, hit, err := c.GetOrCompute(context.Background(), executor.KindVector, "g1", "cats", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, res.TotalHits)

	res, hit, err = c.GetOrCompute(context.Background(), executor.KindVector, "g1", "cats", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 0.5, res.Results[0].Score)
	assert.Equal(t, int32(1), calls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestEquivalentQueriesKeepCallerText(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	compute := func(query string) func() (*executor.SearchResult, error) {
		return func() (*executor.SearchResult, error) {
			return &executor.SearchResult{Query: query, Kind: executor.KindVector, TotalHits: 1}, nil
		}
	}

	first, hit, err := c.GetOrCompute(context.Background(), executor.KindVector, "g1", "cats dogs", compute("cats dogs"))
	require.NoError(t, err)
	require.False(t, hit)

	second, hit, err := c.GetOrCompute(context.Background(), executor.KindVector, "g1", "dogs cats", compute("dogs cats"))
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "dogs cats", second.Query)
	assert.Equal(t, 1, second.TotalHits)
	assert.Equal(t, "cats dogs", first.Query)
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	parseErr := errors.New("parse error")
	_, _, err := c.GetOrCompute(context.Background(), executor.KindBoolean, "g1", "(", func() (*executor.SearchResult, error) {
		return nil, parseErr
	})
	assert.ErrorIs(t, err, parseErr)

	_, hit, err := c.GetOrCompute(context.Background(), executor.KindBoolean, "g1", "(", func() (*executor.SearchResult, error) {
		return &executor.SearchResult{}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestBackendFailureFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.fail = true
	c := New(backend, time.Minute, nil)
	res, hit, err := c.GetOrCompute(context.Background(), executor.KindVector, "g1", "cats", func() (*executor.SearchResult, error) {
		return &executor.SearchResult{TotalHits: 2}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, res.TotalHits)
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), executor.KindVector, "g1", "cats", func() (*executor.SearchResult, error) {
		return &executor.SearchResult{}, nil
	})
	require.NoError(t, err)
	require.Len(t, backend.data, 1)

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Empty(t, backend.data)
}

func TestCircuitBreakerSkipsFailingBackend(t *testing.T) {
	backend := newMemBackend()
	backend.fail = true
	cb := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	c := New(WithCircuitBreaker(backend, cb), time.Minute, nil)

	for i := 0; i < 3; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), executor.KindVector, "g1", "cats", func() (*executor.SearchResult, error) {
			return &executor.SearchResult{TotalHits: 1}, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 1, res.TotalHits)
	}
	assert.Equal(t, resilience.StateOpen, cb.State())
	assert.Equal(t, 1, backend.lookups)
	_, misses := c.Stats()
	assert.Equal(t, int64(3), misses)
}
