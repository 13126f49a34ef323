// Package observability exposes the gatekeeper's metrics, traces and ops
// HTTP endpoints.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcomes of a finished challenge.
const (
	OutcomeResolved  = "resolved"
	OutcomeExpired   = "expired"
	OutcomeCancelled = "cancelled"
)

const namespace = "tgcaptcha"

// Registry holds every collector of the process.
var Registry = prometheus.NewRegistry()

var (
	challengesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_issued_total",
			Help:      "Challenges sent to new members",
		},
		[]string{"kind"},
	)

	challengesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_finished_total",
			Help:      "Challenges that left the pending state, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	challengesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "challenges_active",
		Help:      "Challenges waiting for an answer",
	})

	floodDetections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flood_detections_total",
		Help:      "Joins that arrived during a join burst",
	})

	suppressedNotices = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "suppressed_notices_total",
		Help:      "Failure notices folded into an aggregation message",
	})
)

func init() {
	Registry.MustRegister(
		challengesIssued,
		challengesFinished,
		challengesActive,
		floodDetections,
		suppressedNotices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func RecordChallengeIssued(kind string) {
	challengesIssued.WithLabelValues(kind).Inc()
	challengesActive.Inc()
}

func RecordChallengeFinished(kind, outcome string) {
	challengesFinished.WithLabelValues(kind, outcome).Inc()
	challengesActive.Dec()
}

func RecordFloodDetected() {
	floodDetections.Inc()
}

func RecordSuppressedNotice() {
	suppressedNotices.Inc()
}
