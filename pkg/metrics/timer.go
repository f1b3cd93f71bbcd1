package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in a histogram
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a labeled histogram
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
