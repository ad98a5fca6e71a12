package transport

import (
	"sync/atomic"
	"time"
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

// Metrics tracks operational statistics for the transport core; a
// Transport shares one Metrics across all of its workers.
type Metrics struct {
	// Operation counters
	AcceptOps  atomic.Uint64
	ConnectOps atomic.Uint64
	ReadOps    atomic.Uint64
	WriteOps   atomic.Uint64
	CancelOps  atomic.Uint64

	// Byte counters
	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	// Error counters
	AcceptErrors  atomic.Uint64
	ConnectErrors atomic.Uint64
	ReadErrors    atomic.Uint64
	WriteErrors   atomic.Uint64

	// Exhaustion counters
	BufferExhaustions   atomic.Uint64
	SequenceExhaustions atomic.Uint64

	// Queue depth statistics (pending submissions on the worker's ring)
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts); bucket[i] holds the
	// count of operations with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAccept records an accept completion.
func (m *Metrics) RecordAccept(latencyNs uint64, success bool) {
	m.AcceptOps.Add(1)
	if !success {
		m.AcceptErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordConnect records a connect completion.
func (m *Metrics) RecordConnect(latencyNs uint64, success bool) {
	m.ConnectOps.Add(1)
	if !success {
		m.ConnectErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRead records a read or recv completion.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write or send completion.
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCancel records an async-cancel submission (timeout- or fd-triggered).
func (m *Metrics) RecordCancel() {
	m.CancelOps.Add(1)
}

// RecordBufferExhaustion records a failed buffer pool allocation.
func (m *Metrics) RecordBufferExhaustion() {
	m.BufferExhaustions.Add(1)
}

// RecordSequenceExhaustion records a failed sequence pool allocation.
func (m *Metrics) RecordSequenceExhaustion() {
	m.SequenceExhaustions.Add(1)
}

// RecordQueueDepth records the current number of in-flight operations on a
// worker's ring for statistics.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
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

// Stop marks the end of the measured period (Transport.Shutdown calls it).
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	AcceptOps  uint64
	ConnectOps uint64
	ReadOps    uint64
	WriteOps   uint64
	CancelOps  uint64

	ReadBytes  uint64
	WriteBytes uint64

	AcceptErrors  uint64
	ConnectErrors uint64
	ReadErrors    uint64
	WriteErrors   uint64

	BufferExhaustions   uint64
	SequenceExhaustions uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	ReadIOPS       float64
	WriteIOPS      float64
	ReadBandwidth  float64
	WriteBandwidth float64
	TotalOps       uint64
	TotalBytes     uint64
	ErrorRate      float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		AcceptOps:           m.AcceptOps.Load(),
		ConnectOps:          m.ConnectOps.Load(),
		ReadOps:             m.ReadOps.Load(),
		WriteOps:            m.WriteOps.Load(),
		CancelOps:           m.CancelOps.Load(),
		ReadBytes:           m.ReadBytes.Load(),
		WriteBytes:          m.WriteBytes.Load(),
		AcceptErrors:        m.AcceptErrors.Load(),
		ConnectErrors:       m.ConnectErrors.Load(),
		ReadErrors:          m.ReadErrors.Load(),
		WriteErrors:         m.WriteErrors.Load(),
		BufferExhaustions:   m.BufferExhaustions.Load(),
		SequenceExhaustions: m.SequenceExhaustions.Load(),
		MaxQueueDepth:       m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.AcceptOps + snap.ConnectOps + snap.ReadOps + snap.WriteOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

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
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadIOPS = float64(snap.ReadOps) / uptimeSeconds
		snap.WriteIOPS = float64(snap.WriteOps) / uptimeSeconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / uptimeSeconds
		snap.WriteBandwidth = float64(snap.WriteBytes) / uptimeSeconds
	}

	totalErrors := snap.AcceptErrors + snap.ConnectErrors + snap.ReadErrors + snap.WriteErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
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

// Reset resets all metrics counters; useful for testing.
func (m *Metrics) Reset() {
	m.AcceptOps.Store(0)
	m.ConnectOps.Store(0)
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.CancelOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.AcceptErrors.Store(0)
	m.ConnectErrors.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.BufferExhaustions.Store(0)
	m.SequenceExhaustions.Store(0)
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

// Observer allows pluggable metrics collection for worker events.
type Observer interface {
	ObserveAccept(latencyNs uint64, success bool)
	ObserveConnect(latencyNs uint64, success bool)
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveCancel()
	ObserveBufferExhaustion()
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAccept(uint64, bool)        {}
func (NoOpObserver) ObserveConnect(uint64, bool)       {}
func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveCancel()                    {}
func (NoOpObserver) ObserveBufferExhaustion()          {}
func (NoOpObserver) ObserveQueueDepth(uint32)          {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAccept(latencyNs uint64, success bool) {
	o.metrics.RecordAccept(latencyNs, success)
}

func (o *MetricsObserver) ObserveConnect(latencyNs uint64, success bool) {
	o.metrics.RecordConnect(latencyNs, success)
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveCancel() {
	o.metrics.RecordCancel()
}

func (o *MetricsObserver) ObserveBufferExhaustion() {
	o.metrics.RecordBufferExhaustion()
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
