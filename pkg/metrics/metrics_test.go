package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ProviderResult("ovh", "success", time.Second)
	m.ProviderResult("ovh", "rate_limited", time.Second)
	m.ProviderResult("ovh", "success", time.Second)
	m.Fallback("story")
	m.ImageTask("timeout", time.Minute)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerResults.WithLabelValues("ovh", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerResults.WithLabelValues("ovh", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("story")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imageTasks.WithLabelValues("timeout")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProviderResult("a", "b", 0)
		m.Fallback("choices")
		m.ImageTask("success", 0)
		m.Request("/", 200, 0)
		m.PromptTokens(10)
		m.LineageLookup()
		m.LineageLoad()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Fallback("choices")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `taleweaver_fallbacks_total{stage="choices"} 1`)
}
