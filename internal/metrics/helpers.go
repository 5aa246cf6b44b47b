package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
)

// Collector metric names
const (
	MetricNLL               = "nll"
	MetricEvaluationLatency = "evaluation_latency_ms"
	MetricEventsEvaluated   = "events_evaluated"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ampcore_evaluations_total",
		Help: "Total manager evaluations by dataset",
	}, []string{"dataset"})

	eventsEvaluatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ampcore_events_evaluated_total",
		Help: "Total events evaluated by dataset",
	}, []string{"dataset"})

	evaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ampcore_evaluation_duration_seconds",
		Help:    "Manager evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	}, []string{"dataset"})

	fitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ampcore_fits_total",
		Help: "Finished fits by method and final status",
	}, []string{"method", "status"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ampcore_sessions",
		Help: "Number of open fit sessions",
	})
)

// EvaluationRecorder exports manager evaluation timings to Prometheus and,
// when a collector is attached, to its time series.
type EvaluationRecorder struct {
	collector *Collector
	labels    map[string]string
}

// NewEvaluationRecorder creates a recorder. collector may be nil.
func NewEvaluationRecorder(collector *Collector, labels map[string]string) *EvaluationRecorder {
	return &EvaluationRecorder{collector: collector, labels: copyLabels(labels)}
}

// ObserveEvaluation records one evaluation of events events of dataset.
func (r *EvaluationRecorder) ObserveEvaluation(dataset string, events int, elapsed time.Duration) {
	evaluationsTotal.WithLabelValues(dataset).Inc()
	eventsEvaluatedTotal.WithLabelValues(dataset).Add(float64(events))
	evaluationDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())

	if r.collector == nil {
		return
	}
	labels := DatasetLabels(dataset)
	for k, v := range r.labels {
		labels[k] = v
	}
	now := time.Now()
	r.collector.Record(MetricEvaluationLatency, float64(elapsed)/float64(time.Millisecond), now, labels)
	r.collector.Record(MetricEventsEvaluated, float64(events), now, labels)
}

// RecordNLL records one objective value
func RecordNLL(collector *Collector, nll float64, timestamp time.Time, labels map[string]string) {
	collector.Record(MetricNLL, nll, timestamp, labels)
}

// ObserveFit counts a finished fit
func ObserveFit(method string, status models.FitStatus) {
	fitsTotal.WithLabelValues(method, string(status)).Inc()
}

// SetSessions sets the open session gauge
func SetSessions(n int) {
	sessionsActive.Set(float64(n))
}

// DatasetLabels creates a labels map for a dataset
func DatasetLabels(dataset string) map[string]string {
	return map[string]string{
		"dataset": dataset,
	}
}

// SessionLabels creates a labels map for a fit session
func SessionLabels(sessionID string) map[string]string {
	return map[string]string{
		"session": sessionID,
	}
}
