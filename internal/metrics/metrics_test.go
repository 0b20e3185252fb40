package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	m.ObserveFetch("yahoo", nil, time.Second)
	m.CacheResult("hit")
	m.ObserveCompute(10, time.Microsecond)
	m.ObserveInference("multi", nil, time.Millisecond)
	m.AddSamples("Double Bottom", 3)
	m.ObserveScan(nil)
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveFetch("yahoo", nil, time.Second)
	m.ObserveFetch("yahoo", errors.New("boom"), time.Second)
	m.ObserveFetch("yahoo", errors.New("boom"), time.Second)
	m.AddSamples("Wedge", 5)

	body := scrape(t, m)
	for _, want := range []string{
		`patternscope_provider_fetches_total{outcome="error",provider="yahoo"} 2`,
		`patternscope_provider_fetches_total{outcome="ok",provider="yahoo"} 1`,
		`patternscope_dataset_samples_total{label="Wedge"} 5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in exposition", want)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("Reading exposition: %v", err)
	}
	return string(body)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/stock/:ticker", 200, 10*time.Millisecond)

	body := scrape(t, m)
	if !strings.Contains(body, `patternscope_http_requests_total{method="GET",route="/stock/:ticker",status="200"} 1`) {
		t.Errorf("Expected request counter in exposition, got:\n%s", body)
	}
}
