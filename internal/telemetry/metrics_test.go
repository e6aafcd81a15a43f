package telemetry

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHitRatioTracksCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit("snapshot")
	m.RecordCacheHit("snapshot")
	m.RecordCacheMiss("snapshot")
	m.RecordCacheHit("signal")

	// 3 hits, 1 miss.
	body := scrape(t, m)
	assert.Contains(t, body, "bookpulse_cache_hit_ratio 0.75")
}

func TestObserveFetchClassifiesErrors(t *testing.T) {
	m := NewMetrics()

	m.ObserveFetch("binance", 50*time.Millisecond, nil)
	m.ObserveFetch("okx", 100*time.Millisecond, errors.New("venue unreachable: okx"))
	m.ObserveFetch("coinbase", time.Second, errors.New("context deadline exceeded"))

	body := scrape(t, m)
	assert.Contains(t, body, `bookpulse_fetch_errors_total{kind="unreachable",venue="okx"} 1`)
	assert.Contains(t, body, `bookpulse_fetch_errors_total{kind="timeout",venue="coinbase"} 1`)
}

func TestJobTimerRecordsStatus(t *testing.T) {
	m := NewMetrics()

	m.StartJob("vpin.refresh").Stop(nil)
	m.StartJob("vpin.refresh").Stop(errors.New("boom"))

	body := scrape(t, m)
	assert.Contains(t, body, `bookpulse_job_runs_total{job="vpin.refresh",status="success"} 1`)
	assert.Contains(t, body, `bookpulse_job_runs_total{job="vpin.refresh",status="error"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
