package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveGenerate(t *testing.T) {
	m := New()

	m.ObserveGenerate("hit", 5*time.Millisecond)
	m.ObserveGenerate("hit", 7*time.Millisecond)
	m.ObserveGenerate("error", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generateTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generateTotal.WithLabelValues("error")))
}

func TestGuardrailBlockLabels(t *testing.T) {
	m := New()

	m.RecordGuardrailBlock("prompt_injection")
	m.RecordGuardrailBlock("")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardrailBlocks.WithLabelValues("prompt_injection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardrailBlocks.WithLabelValues("unknown")))
}

func TestCacheCounters(t *testing.T) {
	m := New()

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheEviction()
	m.SetCacheEntries(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvictions))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.cacheEntries))
}

func TestAddTokensIgnoresNonPositive(t *testing.T) {
	m := New()

	m.AddTokens(10)
	m.AddTokens(0)
	m.AddTokens(-5)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.tokensGenerated))
}

func TestMiddlewareRecordsRouteAndStatus(t *testing.T) {
	m := New()

	handler := m.Middleware("/api/chat", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat?x=1", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/chat", "403")))
}

func TestHandlerServesScrape(t *testing.T) {
	m := New()
	m.ObserveGenerate("ok", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inferd_generate_requests_total")
}

func TestFreshRegistriesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.RecordCacheHit()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.cacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cacheHits))
}
