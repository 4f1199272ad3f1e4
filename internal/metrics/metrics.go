// Package metrics counts task and run outcomes on a private Prometheus registry.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/metalagman/rolecall/internal/report"
)

const namespace = "rolecall"

// Collector holds the rolecall collectors.
type Collector struct {
	registry *prometheus.Registry

	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	runsTotal    *prometheus.CounterVec
}

// NewCollector registers the collectors on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Finished tasks by backend and status.",
			},
			[]string{"backend", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Task wall time in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"backend"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs by backend and status.",
			},
			[]string{"backend", "status"},
		),
	}
}

// ObserveRecord counts one task record.
func (c *Collector) ObserveRecord(backend string, rec report.Record) {
	c.tasksTotal.WithLabelValues(backend, string(rec.Status)).Inc()
	if rec.Status != report.StatusSkipped && rec.Status != report.StatusCancelled {
		c.taskDuration.WithLabelValues(backend).Observe(rec.Duration.Seconds())
	}
}

// ObserveRun counts a finished run.
func (c *Collector) ObserveRun(rep *report.ExecutionReport) {
	c.runsTotal.WithLabelValues(rep.Backend, rep.Status()).Inc()
}

// WriteFile writes the registry in the text exposition format, for the
// node exporter textfile collector.
func (c *Collector) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
