package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sessions *prometheus.CounterVec
	rejected *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answerstream_sessions_total",
			Help: "Answer sessions by terminal outcome.",
		}, []string{"outcome"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answerstream_requests_rejected_total",
			Help: "Stream-open and follow-up requests rejected before a session started.",
		}, []string{"reason"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "answerstream_session_duration_seconds",
			Help:    "Wall time of answer sessions by provider kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
}
