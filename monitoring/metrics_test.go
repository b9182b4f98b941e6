package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestIncrCounter(t *testing.T) {
	mc := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mc.IncrCounter(MetricPredictions, map[string]string{"outcome": "ok"})
		}()
	}
	wg.Wait()
	mc.IncrCounter(MetricPredictions, map[string]string{"outcome": "bad_request"})

	if got := mc.Counter(MetricPredictions, map[string]string{"outcome": "ok"}); got != 50 {
		t.Errorf("expected 50, got %v", got)
	}
	if got := mc.Counter(MetricPredictions, map[string]string{"outcome": "internal"}); got != 0 {
		t.Errorf("expected 0 for unseen labels, got %v", got)
	}
	if len(mc.Snapshot()) != 2 {
		t.Errorf("expected 2 series, got %d", len(mc.Snapshot()))
	}
}

func TestIncrCounterIgnoresUnknownSeries(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter("no_such_metric", nil)
	mc.IncrCounter(MetricPredictions, map[string]string{"route": "/predict"})
	mc.IncrCounter(MetricModelReloads, nil)

	snap := mc.Snapshot()
	if len(snap) != 1 || snap[0].Name != MetricModelReloads || snap[0].Value != 1 {
		t.Fatalf("expected only the reload counter, got %+v", snap)
	}
}

func TestObserve(t *testing.T) {
	mc := NewMetricsCollector()
	labels := map[string]string{"method": "POST", "route": "/predict"}
	for _, v := range []float64{0.2, 0.1, 0.3} {
		mc.Observe(MetricRequestDuration, v, labels)
	}

	snap := mc.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 series, got %d", len(snap))
	}
	m := snap[0]
	if m.Type != MetricTypeSummary || m.Count != 3 {
		t.Fatalf("unexpected summary %+v", m)
	}
	if m.Value < 0.59 || m.Value > 0.61 {
		t.Errorf("expected sum 0.6, got %v", m.Value)
	}
	if q, ok := m.Quantiles["0.5"]; !ok || q < 0.1 || q > 0.3 {
		t.Errorf("expected a median within the observed range, got %v", m.Quantiles)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter(MetricAdvisories, map[string]string{"outcome": "ok"})

	snap := mc.Snapshot()
	snap[0].Labels["outcome"] = "changed"
	snap[0].Value = 99

	if got := mc.Counter(MetricAdvisories, map[string]string{"outcome": "ok"}); got != 1 {
		t.Errorf("snapshot must not alias collector state, got %v", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter(MetricPredictions, map[string]string{"outcome": "ok"})
	mc.Observe(MetricRequestDuration, 0.5, map[string]string{"method": "POST", "route": "/predict"})

	w := httptest.NewRecorder()
	mc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	out := w.Body.String()
	for _, want := range []string{
		"# TYPE crop_predictions_total counter",
		`crop_predictions_total{outcome="ok"} 1`,
		`http_request_duration_seconds_count{method="POST",route="/predict"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if strings.Contains(out, "go_goroutines") {
		t.Errorf("private registry should not export runtime collectors")
	}
}
