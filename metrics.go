package goSession

import (
	"time"

	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricSessionCreated
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	// MetricFamilyRevoked counts families revoked after reuse.
	MetricFamilyRevoked
	MetricResolveAccess
	MetricResolveRotated
	MetricResolveFailure
	MetricStaleSessionVersion
	MetricLogout
	MetricLogoutAll
	MetricSessionVersionBumped
	MetricTransientStoreError
	// MetricResolveLatency is the only histogram-backed id.
	MetricResolveLatency
	metricIDCount
)

// Metrics holds the engine's in-process counters. A nil or disabled
// *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	set           *internalmetrics.Set
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates counters for every [MetricID].
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		set:           internalmetrics.New(int(metricIDCount), int(MetricResolveLatency)),
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.set.Inc(int(id))
}

// Observe records a latency sample. Only [MetricResolveLatency] has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricResolveLatency {
		return
	}
	m.set.Observe(int(id), d)
}

// Value returns the current value of the counter for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.set.Value(int(id))
}

// Snapshot copies the current counters and, when enabled, latency buckets.
//
// Snapshot does not mutate shared global state and can be used concurrently
// with Inc and Observe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.enableLatency {
		s.Histograms[MetricResolveLatency] = m.set.Buckets(int(MetricResolveLatency))
	}
	return s
}
