package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proposalgate_evaluations_total",
		Help: "Gate evaluations by decision",
	}, []string{"decision"})

	evaluationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "proposalgate_evaluation_seconds",
		Help:    "Wall time of one gate evaluation",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	attestationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proposalgate_attestations_total",
		Help: "Attestation submissions by result",
	}, []string{"result"})
)
