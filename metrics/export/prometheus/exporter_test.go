package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard"
)

type fakeSource struct {
	snapshot tokenguard.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() tokenguard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters:   map[tokenguard.MetricID]uint64{},
			Histograms: map[tokenguard.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderCountersAndHistograms(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters: map[tokenguard.MetricID]uint64{
				tokenguard.MetricRefreshSuccess:       7,
				tokenguard.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[tokenguard.MetricID][]uint64{
				tokenguard.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			LatencySums: map[tokenguard.MetricID]time.Duration{
				tokenguard.MetricRefreshLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE tokenguard_refresh_success_total counter\n",
		"tokenguard_refresh_success_total 7\n",
		"tokenguard_refresh_reuse_detected_total 1\n",
		"tokenguard_csrf_rejected_total 0\n",
		"# TYPE tokenguard_refresh_latency_seconds histogram\n",
		`tokenguard_refresh_latency_seconds_bucket{le="0.005"} 1` + "\n",
		`tokenguard_refresh_latency_seconds_bucket{le="+Inf"} 36` + "\n",
		"tokenguard_refresh_latency_seconds_count 36\n",
		"tokenguard_refresh_latency_seconds_sum 1.5\n",
		"tokenguard_audit_dropped_total 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "tokenguard_validate_latency_seconds") {
		t.Fatalf("histogram absent from snapshot must not render:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters: map[tokenguard.MetricID]uint64{tokenguard.MetricLoginSuccess: 1},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporter(fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters: map[tokenguard.MetricID]uint64{
				tokenguard.MetricLoginSuccess:   1000,
				tokenguard.MetricRefreshSuccess: 800,
				tokenguard.MetricRefreshFailure: 10,
				tokenguard.MetricTokenIssued:    1800,
			},
			Histograms: map[tokenguard.MetricID][]uint64{
				tokenguard.MetricRefreshLatency:  {10, 20, 30, 40, 50, 60, 70, 80},
				tokenguard.MetricValidateLatency: {80, 70, 60, 50, 40, 30, 20, 10},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
