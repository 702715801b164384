package tokenguard

import (
	"sync/atomic"
	"testing"
	"time"
)

// rotationMix is the counter pattern of a refresh-heavy workload.
var rotationMix = [...]MetricID{
	MetricRefreshSuccess,
	MetricTokenIssued,
	MetricRefreshSuccess,
	MetricTokenIssued,
	MetricRefreshFailure,
	MetricRefreshNotFound,
	MetricLoginSuccess,
	MetricLogout,
}

type incrementer interface{ Inc(MetricID) }

// unpaddedMetrics is the false-sharing baseline for the padded counters.
type unpaddedMetrics struct {
	counters [metricIDCount]atomic.Uint64
}

func (m *unpaddedMetrics) Inc(id MetricID) { m.counters[id].Add(1) }

func BenchmarkMetricsInc(b *testing.B) {
	for _, tc := range []struct {
		name    string
		enabled bool
	}{
		{"enabled", true},
		{"disabled", false},
	} {
		m := NewMetrics(MetricsConfig{Enabled: tc.enabled})
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				m.Inc(MetricRefreshSuccess)
			}
		})
		b.Run(tc.name+"/parallel", func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					m.Inc(MetricRefreshSuccess)
				}
			})
		})
	}
}

func BenchmarkMetricsObserve(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		d := 3 * time.Millisecond
		for pb.Next() {
			m.Observe(MetricRefreshLatency, d)
			d += 7 * time.Millisecond
			if d > time.Second {
				d = time.Millisecond
			}
		}
	})
}

func BenchmarkMetricsRotationMix(b *testing.B) {
	for name, m := range map[string]incrementer{
		"padded":   NewMetrics(MetricsConfig{Enabled: true}),
		"unpadded": &unpaddedMetrics{},
	} {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				var i int
				for pb.Next() {
					m.Inc(rotationMix[i%len(rotationMix)])
					i++
				}
			})
		})
	}
}
