package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mathdee/raftcore/internal/raft"
)

// RaftMetrics are the Prometheus collectors a node's Hull activity
// feeds, independent of the request-latency Metrics tracked in
// internal/server.
type RaftMetrics struct {
	Term          prometheus.Gauge
	Role          *prometheus.GaugeVec
	CommitIndex   prometheus.Gauge
	Elections     prometheus.Counter
	AppendLatency prometheus.Histogram
	Problems      prometheus.Counter
}

// NewRaftMetrics registers the Raft collectors against reg. Pass
// prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer-backed registry in production.
func NewRaftMetrics(reg prometheus.Registerer) *RaftMetrics {
	factory := promauto.With(reg)
	return &RaftMetrics{
		Term: factory.NewGauge(prometheus.GaugeOpts{
			Name: "raftcore_term",
			Help: "Current Raft term observed by this node.",
		}),
		Role: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "raftcore_role",
			Help: "1 for the role this node currently holds, 0 otherwise.",
		}, []string{"role"}),
		CommitIndex: factory.NewGauge(prometheus.GaugeOpts{
			Name: "raftcore_commit_index",
			Help: "Highest log index known to be committed.",
		}),
		Elections: factory.NewCounter(prometheus.CounterOpts{
			Name: "raftcore_elections_started_total",
			Help: "Number of campaigns this node has started.",
		}),
		AppendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "raftcore_append_entries_latency_seconds",
			Help:    "Time from a client command's HTTP submission to its commit.",
			Buckets: prometheus.DefBuckets,
		}),
		Problems: factory.NewCounter(prometheus.CounterOpts{
			Name: "raftcore_problems_total",
			Help: "Number of problem events on the Hull's event stream (stale responses received while follower).",
		}),
	}
}

// Observe updates the role/term/commit gauges from a Hull snapshot.
// Call this from an event-stream subscriber on every EventStateEntered
// / EventCommitAdvanced notification.
func (m *RaftMetrics) Observe(h *raft.Hull) {
	m.Term.Set(float64(h.Term()))
	m.CommitIndex.Set(float64(h.CommitIndex()))
	for _, role := range []raft.StateCode{raft.StateFollower, raft.StateCandidate, raft.StateLeader} {
		val := 0.0
		if h.StateCode() == role {
			val = 1.0
		}
		m.Role.WithLabelValues(role.String()).Set(val)
	}
}
