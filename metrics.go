package tokenguard

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter or latency histogram in a MetricsSnapshot.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	// MetricTokenIssued counts every new refresh lineage entry, rotations included.
	MetricTokenIssued
	MetricRefreshSuccess
	// MetricRefreshFailure counts every rejected or failed refresh.
	MetricRefreshFailure
	MetricRefreshExpired
	MetricRefreshNotFound
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	// MetricDeviceRevoked counts revocation sweeps, not revoked records.
	MetricDeviceRevoked
	MetricLogout
	MetricCSRFRejected
	// MetricAlertFailure counts alert sink calls that returned an error.
	MetricAlertFailure
	// MetricRefreshLatency and MetricValidateLatency are histograms, recorded
	// only with WithLatencyHistograms.
	MetricRefreshLatency
	MetricValidateLatency
	metricIDCount
)

const cacheLineSize = 64

// latencyBounds are the inclusive upper bounds of the first seven buckets;
// the eighth catches everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

var latencyMetrics = [...]MetricID{MetricRefreshLatency, MetricValidateLatency}

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sumNano atomic.Int64
}

type paddedCounter struct {
	atomic.Uint64
	_ [cacheLineSize - 8]byte
}

// Metrics holds the engine's counters and latency histograms. All methods
// are safe for concurrent use and no-ops when metrics are disabled.
type Metrics struct {
	enabled bool
	latency bool
	// counters is indexed by MetricID; latency ids leave their slot unused.
	counters   [metricIDCount]paddedCounter
	histograms [len(latencyMetrics)]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and, when enabled,
// the latency histograms (8 non-cumulative buckets each) with their sums.
type MetricsSnapshot struct {
	Counters    map[MetricID]uint64
	Histograms  map[MetricID][]uint64
	LatencySums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether Observe records anything. Callers use it to
// skip reading the clock.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc adds one to a counter. It is a no-op on a nil or disabled Metrics.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d into the histogram of a latency metric. Other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.latency {
		return
	}
	slot := latencySlot(id)
	if slot < 0 {
		return
	}
	h := &m.histograms[slot]
	h.buckets[bucketIndex(d)].Add(1)
	h.sumNano.Add(int64(d))
}

// Value returns the current count of a counter metric.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter and histogram. Reads are individually
// atomic; the snapshot as a whole is not.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:    map[MetricID]uint64{},
		Histograms:  map[MetricID][]uint64{},
		LatencySums: map[MetricID]time.Duration{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if latencySlot(id) >= 0 {
			continue
		}
		s.Counters[id] = m.counters[id].Load()
	}

	if m.latency {
		for slot, id := range latencyMetrics {
			h := &m.histograms[slot]
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = h.buckets[i].Load()
			}
			s.Histograms[id] = buckets
			s.LatencySums[id] = time.Duration(h.sumNano.Load())
		}
	}
	return s
}

func latencySlot(id MetricID) int {
	for i, l := range latencyMetrics {
		if l == id {
			return i
		}
	}
	return -1
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
