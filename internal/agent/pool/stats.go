package pool

import (
	"math"
	"sort"
	"sync"
	"time"
)

const latencySampleSize = 256

// StatsSnapshot is a point-in-time view of the pool's job statistics.
type StatsSnapshot struct {
	JobsProcessed uint64         `json:"jobs_processed"`
	JobsFailed    uint64         `json:"jobs_failed"`
	InFlight      int64          `json:"in_flight"`
	MaxInFlight   uint64         `json:"max_in_flight"`
	LastJobAt     time.Time      `json:"last_job_at"`
	Latency       LatencyMetrics `json:"latency"`
	Resource      ResourceUsage  `json:"resource"`
}

// LatencyMetrics summarises job durations over a sliding sample window.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// Stats accumulates job counters under a single mutex; the in-flight count
// itself lives on the controller's atomic so admission never takes this lock.
type Stats struct {
	mu sync.Mutex

	jobsProcessed uint64
	jobsFailed    uint64
	maxInFlight   uint64
	current       uint64
	lastJobAt     time.Time
	totalNs       int64

	latency   *latencyWindow
	resources *resourceTracker
}

func newStats() *Stats {
	return &Stats{
		latency:   newLatencyWindow(latencySampleSize),
		resources: newResourceTracker(),
	}
}

func (s *Stats) admit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	if s.current > s.maxInFlight {
		s.maxInFlight = s.current
	}
}

func (s *Stats) finish(duration time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current > 0 {
		s.current--
	}
	s.jobsProcessed++
	if failed {
		s.jobsFailed++
	}
	s.totalNs += int64(duration)
	s.lastJobAt = time.Now().UTC()
	s.latency.Add(duration)
}

// Snapshot returns the current statistics together with coarse process
// resource usage.
func (s *Stats) Snapshot(inFlight int64) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := s.latency.Snapshot()
	if s.jobsProcessed > 0 {
		latency.AverageNs = s.totalNs / int64(s.jobsProcessed)
	}

	return StatsSnapshot{
		JobsProcessed: s.jobsProcessed,
		JobsFailed:    s.jobsFailed,
		InFlight:      inFlight,
		MaxInFlight:   s.maxInFlight,
		LastJobAt:     s.lastJobAt,
		Latency:       latency,
		Resource:      s.resources.Snapshot(),
	}
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw == nil {
		return metrics
	}
	if lw.filled == 0 {
		metrics.LastNs = lw.last
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	metrics.LastNs = lw.last
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}
