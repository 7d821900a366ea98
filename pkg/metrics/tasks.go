package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TaskMetrics records outcomes for background worker tasks.
type TaskMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewTaskMetrics registers the worker task metrics on the provided registerer.
func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	if reg == nil {
		return &TaskMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "task_duration_seconds",
		Help:    "Duration of worker tasks in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task_type"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "task_success",
		Help: "Successful worker task executions.",
	}, []string{"task_type"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "task_failure",
		Help: "Failed worker task executions.",
	}, []string{"task_type"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "task_retries",
		Help: "Worker task attempts that were handed back for redelivery.",
	}, []string{"task_type"})
	reg.MustRegister(duration, success, failure, retries)
	return &TaskMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		retries:  retries,
	}
}

// ObserveDuration records the duration for the named task type.
func (m *TaskMetrics) ObserveDuration(taskType string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(taskType)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named task type.
func (m *TaskMetrics) IncSuccess(taskType string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(taskType)).Inc()
}

// IncFailure increments the failure counter for the named task type.
func (m *TaskMetrics) IncFailure(taskType string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(taskType)).Inc()
}

// IncRetry increments the redelivery counter for the named task type.
func (m *TaskMetrics) IncRetry(taskType string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(taskType)).Inc()
}

func normalizeLabel(taskType string) string {
	if taskType == "" {
		return "unknown"
	}
	return taskType
}
