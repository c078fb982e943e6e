package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func TestQueryMetricsRecordsObserverCalls(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewQueryMetrics(registry, "api")

	m.ObserveStage("fuse", 3*time.Millisecond, 7)
	m.ObserveStage("fuse", 1*time.Millisecond, 2)
	m.RecordChannelFailure("keyword")
	m.RecordChannelFailure("keyword")
	m.RecordRerankFallback()
	m.RecordNoContext()

	if got := testutil.ToFloat64(m.channelFailures.WithLabelValues("keyword")); got != 2 {
		t.Fatalf("expected 2 keyword failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.rerankFallbacks); got != 1 {
		t.Fatalf("expected 1 rerank fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.noContext); got != 1 {
		t.Fatalf("expected 1 no-context, got %v", got)
	}
	if got := testutil.CollectAndCount(m.stageDuration); got != 1 {
		t.Fatalf("expected one stage series, got %d", got)
	}
}

func TestCacheStatsAreReadOnScrape(t *testing.T) {
	registry := prometheus.NewRegistry()
	stats := domain.CacheStats{Enabled: true, Entries: 3, Hits: 5, Misses: 2}
	RegisterCacheStats(registry, "api", func() domain.CacheStats { return stats })

	expected := `
# HELP docqa_cache_hits_total Response cache hits.
# TYPE docqa_cache_hits_total counter
docqa_cache_hits_total{service="api"} 5
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "docqa_cache_hits_total"); err != nil {
		t.Fatalf("unexpected hits metric: %v", err)
	}

	stats.Hits = 9
	stats.Entries = 1
	expected = `
# HELP docqa_cache_entries Entries currently held by the response cache.
# TYPE docqa_cache_entries gauge
docqa_cache_entries{service="api"} 1
# HELP docqa_cache_hits_total Response cache hits.
# TYPE docqa_cache_hits_total counter
docqa_cache_hits_total{service="api"} 9
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "docqa_cache_hits_total", "docqa_cache_entries"); err != nil {
		t.Fatalf("unexpected metrics after update: %v", err)
	}
}

func TestHTTPMiddlewareNormalizesDocumentPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, id := range []string{"a", "b"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/"+id, nil))
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/documents/{document_id}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests under the templated path, got %v", got)
	}
	if testutil.ToFloat64(m.requestInFlight) != 0 {
		t.Fatalf("in-flight gauge must return to zero")
	}
}

func TestHTTPMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordRejected("rate_limited")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `docqa_http_rejected_total{reason="rate_limited",service="api"} 1`) {
		t.Fatalf("expected rejected counter in output:\n%s", rec.Body.String())
	}
}

func TestWorkerMetricsTracksOutcomes(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartDocument()
	m.FinishDocument(time.Second, nil)
	m.StartDocument()
	m.FinishDocument(time.Second, errors.New("extract failed"))
	m.ObserveChunks(12)
	m.ObserveChunks(0)

	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.processInFlight); got != 0 {
		t.Fatalf("expected no in-flight documents, got %v", got)
	}
	if got := testutil.CollectAndCount(m.chunksIndexed); got != 1 {
		t.Fatalf("expected chunk histogram to be collected, got %d", got)
	}
}
