package bdbmq

import (
	"sync/atomic"
	"time"

	"github.com/jhoonl/bdbm-mq/internal/interfaces"
	"github.com/jhoonl/bdbm-mq/internal/request"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8
const numKinds = int(request.RMWWrite) + 1

// Metrics tracks dispatcher-wide operational statistics.
type Metrics struct {
	// Per-kind operation counters, indexed by request.Kind.
	OpsByKind    [numKinds]atomic.Uint64
	ErrorsByKind [numKinds]atomic.Uint64

	// Queue depth statistics, sampled on every Submit.
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Performance tracking.
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts): bucket[i] holds the
	// count of completions with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Submits counts every hand-off to the device model (both phases of an
	// RMW count), independent of completion; at quiescence it equals
	// OpCount, since every hand-off produces exactly one completion.
	Submits atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSubmit records a request (or RMW phase) being handed to the device
// model at the given PU.
func (m *Metrics) RecordSubmit(pu int) {
	m.Submits.Add(1)
}

// RecordComplete records a completion for the given kind: a terminal
// completion, or the read phase of an RMW (recorded as RMWRead).
func (m *Metrics) RecordComplete(pu int, kind request.Kind, latencyNs uint64, success bool) {
	m.OpsByKind[kind].Add(1)
	if !success {
		m.ErrorsByKind[kind].Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordQueueDepth records current total queue depth for statistics.
func (m *Metrics) RecordQueueDepth(depth int) {
	d := uint64(depth)
	m.QueueDepthTotal.Add(d)
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= int(current) {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, uint32(depth)) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the dispatcher as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	OpsByKind    [numKinds]uint64
	ErrorsByKind [numKinds]uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps    uint64
	TotalErrors uint64
	ErrorRate   float64
	IOPS        float64
	Submits     uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot

	for i := 0; i < numKinds; i++ {
		snap.OpsByKind[i] = m.OpsByKind[i].Load()
		snap.ErrorsByKind[i] = m.ErrorsByKind[i].Load()
		snap.TotalOps += snap.OpsByKind[i]
		snap.TotalErrors += snap.ErrorsByKind[i]
	}
	snap.Submits = m.Submits.Load()
	snap.MaxQueueDepth = m.MaxQueueDepth.Load()

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		snap.IOPS = float64(snap.TotalOps) / (float64(snap.UptimeNs) / 1e9)
	}

	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters. Useful for testing.
func (m *Metrics) Reset() {
	for i := 0; i < numKinds; i++ {
		m.OpsByKind[i].Store(0)
		m.ErrorsByKind[i].Store(0)
	}
	m.Submits.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection. It matches
// internal/interfaces.Observer so a *Metrics-backed MetricsObserver can be
// handed straight to the dispatch engine.
type Observer interface {
	ObserveSubmit(pu int)
	ObserveComplete(pu int, kind request.Kind, latencyNs uint64, success bool)
	ObserveQueueDepth(depth int)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSubmit(int)                               {}
func (NoOpObserver) ObserveComplete(int, request.Kind, uint64, bool) {}
func (NoOpObserver) ObserveQueueDepth(int)                           {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSubmit(pu int) {
	o.metrics.RecordSubmit(pu)
}

func (o *MetricsObserver) ObserveComplete(pu int, kind request.Kind, latencyNs uint64, success bool) {
	o.metrics.RecordComplete(pu, kind, latencyNs, success)
}

func (o *MetricsObserver) ObserveQueueDepth(depth int) {
	o.metrics.RecordQueueDepth(depth)
}

// Compile-time interface checks.
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
var _ interfaces.Observer = (*MetricsObserver)(nil)
