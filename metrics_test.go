package mailotp

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricChallengeCreated)
	m.Observe(MetricCreateLatency, 10*time.Millisecond)

	if m.Value(MetricChallengeCreated) != 0 {
		t.Error("disabled metrics recorded a counter")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Errorf("disabled snapshot not empty: %+v", snap)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics

	m.Inc(MetricChallengeCreated)
	m.Observe(MetricVerifyLatency, time.Millisecond)
	if m.Value(MetricChallengeCreated) != 0 {
		t.Error("nil metrics returned a value")
	}
	if m.Enabled() {
		t.Error("nil metrics reported enabled")
	}
	_ = m.Snapshot()
}

func TestMetricsCountersAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Inc(MetricVerifyAccepted)
	m.Inc(MetricVerifyAccepted)
	m.Inc(MetricVerifyRejected)
	m.Observe(MetricVerifyLatency, 3*time.Millisecond)
	m.Observe(MetricVerifyLatency, 700*time.Millisecond)

	if got := m.Value(MetricVerifyAccepted); got != 2 {
		t.Errorf("accepted = %d, want 2", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricVerifyRejected] != 1 {
		t.Errorf("rejected = %d, want 1", snap.Counters[MetricVerifyRejected])
	}

	buckets := snap.Histograms[MetricVerifyLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count = %d, want %d", len(buckets), histBucketCount)
	}
	if buckets[0] != 1 {
		t.Errorf("first bucket = %d, want 1 (3ms sample)", buckets[0])
	}
	if buckets[histBucketCount-1] != 1 {
		t.Errorf("overflow bucket = %d, want 1 (700ms sample)", buckets[histBucketCount-1])
	}
}

func TestObserveIgnoresNonLatencyIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricVerifyAccepted, time.Millisecond)

	snap := m.Snapshot()
	for id, buckets := range snap.Histograms {
		for i, v := range buckets {
			if v != 0 {
				t.Fatalf("histogram %d bucket %d = %d after non-latency observe", id, i, v)
			}
		}
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{5 * time.Second, 7},
	}

	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Errorf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 16
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.Inc(MetricChallengeCreated)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricChallengeCreated); got != goroutines*perGoroutine {
		t.Errorf("counter = %d, want %d", got, goroutines*perGoroutine)
	}
}
