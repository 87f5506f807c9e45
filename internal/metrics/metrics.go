// Package metrics holds the Prometheus collectors for the matching service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/peerprep/matching-server-go/internal/model"
)

const namespace = "matching"

// Submit results.
const (
	SubmitQueued        = "queued"
	SubmitDuplicate     = "duplicate"
	SubmitInvalid       = "invalid"
	SubmitEnqueueFailed = "enqueue_failed"
)

type Metrics struct {
	requestsSubmitted *prometheus.CounterVec
	matchesCreated    prometheus.Counter
	matchResolutions  *prometheus.CounterVec
	poolPurges        *prometheus.CounterVec
	pendingRequests   *prometheus.GaugeVec
	connectedUsers    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_submitted_total",
			Help:      "Match requests received, by result.",
		}, []string{"result"}),
		matchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Matches proposed to a pair of users.",
		}),
		matchResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_resolutions_total",
			Help:      "Matches resolved, by outcome.",
		}, []string{"outcome"}),
		poolPurges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_purges_total",
			Help:      "Pending requests dropped from a pool without being matched, by reason.",
		}, []string{"reason"}),
		pendingRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests waiting in each pool partition.",
		}, []string{"partition"}),
		connectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_users",
			Help:      "Users with connection state held by the server.",
		}),
	}

	reg.MustRegister(
		m.requestsSubmitted,
		m.matchesCreated,
		m.matchResolutions,
		m.poolPurges,
		m.pendingRequests,
		m.connectedUsers,
	)
	return m
}

func (m *Metrics) RequestSubmitted(result string) {
	if m == nil {
		return
	}
	m.requestsSubmitted.WithLabelValues(result).Inc()
}

func (m *Metrics) MatchCreated() {
	if m == nil {
		return
	}
	m.matchesCreated.Inc()
}

func (m *Metrics) MatchResolved(outcome model.MatchOutcome) {
	if m == nil {
		return
	}
	m.matchResolutions.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) RequestPurged(reason string) {
	if m == nil {
		return
	}
	m.poolPurges.WithLabelValues(reason).Inc()
}

// SetPending replaces the pending gauge with the given per-partition counts.
// Partitions missing from counts are reset so drained pools stop reporting.
func (m *Metrics) SetPending(counts map[string]int) {
	if m == nil {
		return
	}
	m.pendingRequests.Reset()
	for partition, n := range counts {
		m.pendingRequests.WithLabelValues(partition).Set(float64(n))
	}
}

func (m *Metrics) SetConnected(n int) {
	if m == nil {
		return
	}
	m.connectedUsers.Set(float64(n))
}
