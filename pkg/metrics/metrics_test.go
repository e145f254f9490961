package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, g prometheus.Gatherer) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(g).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewRegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SearchQueriesTotal.WithLabelValues("boolean", "hit").Inc()
	m.SnapshotDocuments.Set(42)

	body := scrape(t, reg)
	assert.Contains(t, body, `search_queries_total{kind="boolean",result_type="hit"} 1`)
	assert.Contains(t, body, "snapshot_documents 42")

	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
	assert.Panics(t, func() { New(reg) })
}

func TestHandlerExposesBuildCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IndexBuildsTotal.WithLabelValues("success").Inc()

	assert.Contains(t, scrape(t, reg), `index_builds_total{status="success"} 1`)
}

func TestServerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SnapshotDocuments.Set(3)

	srv := NewServer(0, reg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "snapshot_documents 3")
}
