package mailotp

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one engine counter or histogram.
type MetricID uint16

const (
	// MetricDecisionIssue counts DefineChallenge decisions to issue a round.
	MetricDecisionIssue MetricID = iota
	// MetricDecisionSucceed counts terminal succeed decisions.
	MetricDecisionSucceed
	// MetricDecisionFail counts terminal fail decisions.
	MetricDecisionFail
	// MetricChallengeCreated counts successfully issued challenges.
	MetricChallengeCreated
	// MetricChallengeCreateFailure counts issuance failures of any cause.
	MetricChallengeCreateFailure
	// MetricChallengeResent counts explicit resends.
	MetricChallengeResent
	// MetricRateLimitHit counts requests refused by the issuance limiter.
	MetricRateLimitHit
	// MetricUserCreated counts pending users provisioned on registration.
	MetricUserCreated
	// MetricDispatchFailure counts mail handoffs the collaborator rejected.
	MetricDispatchFailure
	// MetricVerifyAccepted counts accepted codes.
	MetricVerifyAccepted
	// MetricVerifyRejected counts well-formed wrong codes.
	MetricVerifyRejected
	// MetricVerifyExpired counts submissions against expired records.
	MetricVerifyExpired
	// MetricVerifyNoChallenge counts submissions with no live record.
	MetricVerifyNoChallenge
	// MetricVerifyInvalidFormat counts submissions rejected at the format gate.
	MetricVerifyInvalidFormat
	// MetricCreateLatency is the issuance latency histogram.
	MetricCreateLatency
	// MetricVerifyLatency is the verification latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and fixed-bucket latency histograms.
// A nil or disabled Metrics is safe to use and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] per the config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a handler latency into the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricCreateLatency && id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when latency recording is on, both
// latency histograms.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricCreateLatency, MetricVerifyLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
