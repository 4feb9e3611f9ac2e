package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submissions records submission pipeline activity. A nil *Submissions is a no-op.
type Submissions struct {
	outcomes *prometheus.CounterVec
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSubmissions creates and registers the collectors on reg.
func NewSubmissions(reg prometheus.Registerer) *Submissions {
	s := &Submissions{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_attempt_submissions_total",
				Help: "Finished submission runs by trigger reason and outcome",
			},
			[]string{"reason", "outcome"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_attempt_submission_calls_total",
				Help: "Submission network calls by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiz_attempt_submission_duration_seconds",
				Help:    "Duration of a submission run including retries",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"reason"},
		),
	}
	if reg != nil {
		reg.MustRegister(s.outcomes, s.calls, s.duration)
	}
	return s
}

// Call counts a single network call ("ok", "transient", "rejected").
func (s *Submissions) Call(result string) {
	if s == nil {
		return
	}
	s.calls.WithLabelValues(result).Inc()
}

// Finished records the end of a submission run.
func (s *Submissions) Finished(reason, outcome string, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.outcomes.WithLabelValues(reason, outcome).Inc()
	s.duration.WithLabelValues(reason).Observe(elapsed.Seconds())
}
