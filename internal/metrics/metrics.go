package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_sessions_started_total",
			Help: "Total number of quiz sessions that became active",
		},
	)

	SessionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_rejected_total",
			Help: "Total number of quiz starts refused",
		},
		[]string{"reason"},
	)

	SessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_finished_total",
			Help: "Total number of quiz sessions that reached a terminal state",
		},
		[]string{"status", "auto"},
	)

	Violations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_violations_total",
			Help: "Total number of focus-loss violations registered",
		},
	)

	AnswersRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_answers_recorded_total",
			Help: "Total number of answers written through to the store",
		},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(SessionsStarted)
		prometheus.MustRegister(SessionsRejected)
		prometheus.MustRegister(SessionsFinished)
		prometheus.MustRegister(Violations)
		prometheus.MustRegister(AnswersRecorded)
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
