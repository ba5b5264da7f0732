package server

import (
	"sort"
	"sync"
	"time"
)

// Metrics collects request-latency data for the HTTP status surface's
// /dashboard/metrics JSON snapshot, independent of the Prometheus
// collectors in internal/telemetry. A node wires both: this one for
// the dashboard-style snapshot, telemetry.RaftMetrics for /metrics'
// Prometheus exposition.
type Metrics struct {
	mu            sync.Mutex
	totalRequests int64
	successCount  int64
	failCount     int64
	latencies     []time.Duration
	startTime     time.Time

	// onSuccess, if set, mirrors every recorded success into an
	// external collector (internal/telemetry's append latency
	// histogram).
	onSuccess func(time.Duration)
}

func NewMetrics() *Metrics {
	return &Metrics{
		latencies: make([]time.Duration, 0, 10000),
		startTime: time.Now(),
	}
}

// SetObserver installs a callback invoked on every RecordSuccess,
// letting a Prometheus histogram track the same latencies this
// struct's JSON snapshot does.
func (m *Metrics) SetObserver(fn func(time.Duration)) {
	m.mu.Lock()
	m.onSuccess = fn
	m.mu.Unlock()
}

func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.mu.Lock()
	m.totalRequests++
	m.successCount++
	m.latencies = append(m.latencies, latency)
	observer := m.onSuccess
	m.mu.Unlock()
	if observer != nil {
		observer(latency)
	}
}

func (m *Metrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests++
	m.failCount++
}

func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests = 0
	m.successCount = 0
	m.failCount = 0
	m.latencies = make([]time.Duration, 0, 10000)
	m.startTime = time.Now()
}

type MetricsSnapshot struct {
	TotalRequests int64   `json:"totalRequests"`
	SuccessCount  int64   `json:"successCount"`
	FailCount     int64   `json:"failCount"`
	Throughput    float64 `json:"throughput"`
	LatencyAvg    float64 `json:"latencyAvgMs"`
	LatencyP50    float64 `json:"latencyP50Ms"`
	LatencyP95    float64 `json:"latencyP95Ms"`
	LatencyP99    float64 `json:"latencyP99Ms"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	uptime := time.Since(m.startTime).Seconds()
	snap := MetricsSnapshot{
		TotalRequests: m.totalRequests,
		SuccessCount:  m.successCount,
		FailCount:     m.failCount,
		UptimeSeconds: uptime,
	}
	if uptime > 0 {
		snap.Throughput = float64(m.successCount) / uptime
	}
	if len(m.latencies) > 0 {
		sorted := make([]time.Duration, len(m.latencies))
		copy(sorted, m.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, l := range sorted {
			total += l
		}
		snap.LatencyAvg = float64(total.Microseconds()) / float64(len(sorted)) / 1000.0
		snap.LatencyP50 = float64(sorted[len(sorted)*50/100].Microseconds()) / 1000.0
		snap.LatencyP95 = float64(sorted[len(sorted)*95/100].Microseconds()) / 1000.0
		p99Idx := len(sorted) * 99 / 100
		if p99Idx >= len(sorted) {
			p99Idx = len(sorted) - 1
		}
		snap.LatencyP99 = float64(sorted[p99Idx].Microseconds()) / 1000.0
	}
	return snap
}
